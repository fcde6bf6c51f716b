package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/tourhub/internal/domain/tour"
	"github.com/geocoder89/tourhub/internal/http/handlers"
)

type bindErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			JSON   string                `json:"json"`
			Field  string                `json:"field"`
			Fields []handlers.FieldError `json:"fields"`
		} `json:"details"`
	} `json:"error"`
}

func bindRouter[T any]() *gin.Engine {
	r := gin.New()
	r.POST("/bind", func(ctx *gin.Context) {
		var req T
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusCreated)
	})
	return r
}

func postBind(t *testing.T, r *gin.Engine, body string) bindErrorResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/bind", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	var resp bindErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
	}
	return resp
}

func assertRules(t *testing.T, resp bindErrorResponse, wantRules map[string]string) {
	t.Helper()

	found := map[string]handlers.FieldError{}
	for _, fieldErr := range resp.Error.Details.Fields {
		found[fieldErr.Field] = fieldErr
	}

	for field, rule := range wantRules {
		fieldErr, ok := found[field]
		if !ok {
			t.Fatalf("missing field error for %q: %+v", field, resp.Error.Details.Fields)
		}
		if fieldErr.Rule != rule {
			t.Fatalf("field %q rule mismatch: got %q want %q", field, fieldErr.Rule, rule)
		}
		if fieldErr.Message == "" {
			t.Fatalf("field %q should include a non-empty message", field)
		}
	}
}

func TestBindJSON_ValidationErrorsUseJSONFieldNames(t *testing.T) {
	resp := postBind(t, bindRouter[tour.CreateTourRequest](), `{"name":"Go"}`)

	if resp.Error.Code != "invalid_request" {
		t.Fatalf("unexpected code: %s", resp.Error.Code)
	}

	assertRules(t, resp, map[string]string{
		"name":         "min",
		"duration":     "required",
		"maxGroupSize": "required",
		"price":        "required",
		"imageCover":   "required",
	})
}

func TestBindJSON_DiscountMustBeBelowPrice(t *testing.T) {
	body := `{"name":"The Forest Hiker","duration":5,"maxGroupSize":10,"difficulty":"easy",
		"price":397,"priceDiscount":400,"summary":"s","imageCover":"c.jpg"}`

	resp := postBind(t, bindRouter[tour.CreateTourRequest](), body)

	assertRules(t, resp, map[string]string{"priceDiscount": "ltfield"})
}

func TestBindJSON_ConfirmPasswordMustMatch(t *testing.T) {
	body := `{"name":"Ann","email":"ann@example.com","password":"pass1234","confirmPassword":"pass12345"}`

	resp := postBind(t, bindRouter[handlers.SignUpRequest](), body)

	assertRules(t, resp, map[string]string{"confirmPassword": "eqfield"})

	for _, f := range resp.Error.Details.Fields {
		if f.Field == "confirmPassword" && f.Message != "must match password" {
			t.Fatalf("unexpected message %q", f.Message)
		}
	}
}

func TestBindJSON_TypeMismatchUsesJSONFieldNames(t *testing.T) {
	body := `{"name":"The Forest Hiker","duration":"five"}`

	resp := postBind(t, bindRouter[tour.CreateTourRequest](), body)

	if resp.Error.Details.JSON != "invalid_json_type" {
		t.Fatalf("expected invalid_json_type, got %q", resp.Error.Details.JSON)
	}
	if resp.Error.Details.Field != "duration" {
		t.Fatalf("expected detail field to be duration, got %q", resp.Error.Details.Field)
	}
	if len(resp.Error.Details.Fields) == 0 {
		t.Fatalf("expected at least one field error in details.fields")
	}

	fieldErr := resp.Error.Details.Fields[0]
	if fieldErr.Field != "duration" {
		t.Fatalf("expected fields[0].field=duration, got %q", fieldErr.Field)
	}
	if fieldErr.Rule != "type" {
		t.Fatalf("expected fields[0].rule=type, got %q", fieldErr.Rule)
	}
}

func TestBindJSON_SyntaxError(t *testing.T) {
	resp := postBind(t, bindRouter[handlers.LoginRequest](), `{"email": ]}`)

	if resp.Error.Details.JSON != "invalid_json_syntax" {
		t.Fatalf("expected invalid_json_syntax, got %+v", resp.Error.Details)
	}
}

func TestBindJSON_TypeMismatchNamesJSONKind(t *testing.T) {
	resp := postBind(t, bindRouter[tour.CreateTourRequest](), `{"maxGroupSize":"ten"}`)

	if len(resp.Error.Details.Fields) != 1 {
		t.Fatalf("expected one field error, got %+v", resp.Error.Details.Fields)
	}
	if got := resp.Error.Details.Fields[0]; got.Field != "maxGroupSize" || got.Message != "must be an integer" {
		t.Fatalf("unexpected field error %+v", got)
	}
}

func TestBindJSON_SliceElementPath(t *testing.T) {
	body := `{"name":"The Sea Explorer","duration":7,"maxGroupSize":15,"difficulty":"medium",
		"price":497,"summary":"s","imageCover":"c.jpg","images":["a.jpg",""]}`

	resp := postBind(t, bindRouter[tour.CreateTourRequest](), body)

	assertRules(t, resp, map[string]string{"images[1]": "required"})
}

func TestBindJSON_EmptyBody(t *testing.T) {
	resp := postBind(t, bindRouter[handlers.LoginRequest](), ``)

	if resp.Error.Message != "Request body is empty" || resp.Error.Details.JSON != "empty_body" {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}
