package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/geocoder89/tourhub/internal/observability"
	"github.com/geocoder89/tourhub/internal/query"
)

// Collection runs query.Spec values against a mongo collection and decodes into T.
type Collection[T any] struct {
	coll   *mongo.Collection
	base   bson.D
	fields map[string]struct{}
	prom   *observability.Prom
}

type CollectionOptions struct {
	// Base is ANDed into every filter.
	Base bson.D
	// Fields whitelists the stored field names callers may filter, sort or
	// project on. Nil allows every field.
	Fields []string
	Prom   *observability.Prom
}

func NewCollection[T any](coll *mongo.Collection, opts CollectionOptions) *Collection[T] {
	var fields map[string]struct{}
	if opts.Fields != nil {
		fields = make(map[string]struct{}, len(opts.Fields)+1)
		fields["_id"] = struct{}{}
		for _, f := range opts.Fields {
			fields[f] = struct{}{}
		}
	}

	return &Collection[T]{
		coll:   coll,
		base:   opts.Base,
		fields: fields,
		prom:   opts.Prom,
	}
}

func (c *Collection[T]) Count(ctx context.Context, filter map[string]any) (int64, error) {
	var n int64

	err := c.prom.ObserveDB(c.coll.Name()+".count", func() error {
		var err error
		n, err = c.coll.CountDocuments(ctx, c.filter(filter))
		return err
	})
	if err != nil {
		return 0, storeErr(c.coll.Name()+".count", err)
	}

	return n, nil
}

func (c *Collection[T]) Find(ctx context.Context, spec query.Spec) ([]T, error) {
	opts := options.Find().
		SetSort(c.sortDoc(spec.Sort))
	if spec.Skip > 0 {
		opts.SetSkip(spec.Skip)
	}
	if spec.Limit > 0 {
		opts.SetLimit(spec.Limit)
	}
	if proj := c.projectionDoc(spec.Fields); len(proj) > 0 {
		opts.SetProjection(proj)
	}

	out := make([]T, 0)

	err := c.prom.ObserveDB(c.coll.Name()+".find", func() error {
		cur, err := c.coll.Find(ctx, c.filter(spec.Filter), opts)
		if err != nil {
			return err
		}
		return cur.All(ctx, &out)
	})
	if err != nil {
		return nil, storeErr(c.coll.Name()+".find", err, "skip", spec.Skip, "limit", spec.Limit)
	}

	return out, nil
}

func (c *Collection[T]) filter(f map[string]any) any {
	user := bson.M{}
	for k, v := range f {
		name := storedName(k)
		if !c.allowed(name) {
			continue
		}
		user[name] = v
	}

	switch {
	case len(c.base) == 0:
		return user
	case len(user) == 0:
		return c.base
	default:
		return bson.D{{Key: "$and", Value: bson.A{c.base, user}}}
	}
}

// sortDoc appends _id so equal keys page deterministically.
func (c *Collection[T]) sortDoc(keys []query.SortKey) bson.D {
	doc := bson.D{}
	hasID := false

	for _, k := range keys {
		name := storedName(k.Field)
		if !c.allowed(name) {
			continue
		}
		dir := 1
		if k.Desc {
			dir = -1
		}
		doc = append(doc, bson.E{Key: name, Value: dir})
		if name == "_id" {
			hasID = true
		}
	}

	if !hasID {
		doc = append(doc, bson.E{Key: "_id", Value: 1})
	}
	return doc
}

func (c *Collection[T]) projectionDoc(fields []query.Field) bson.D {
	doc := bson.D{}
	for _, f := range fields {
		name := storedName(f.Name)
		if !c.allowed(name) && f.Name != "__v" {
			continue
		}
		v := 1
		if f.Exclude {
			v = 0
		}
		doc = append(doc, bson.E{Key: name, Value: v})
	}
	return doc
}

func (c *Collection[T]) allowed(name string) bool {
	if c.fields == nil {
		return true
	}
	_, ok := c.fields[name]
	return ok
}

func storedName(field string) string {
	if field == "id" {
		return "_id"
	}
	return field
}
