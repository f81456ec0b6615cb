package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Entities are mapped to plain bson documents through static per-kind
// field tables rather than reflection. A field with a nil setter is
// read-only: it is written out with the record but never read back.
// The store's "_id" is translated to the entity identity by the schema,
// never by the entity itself.

type field[T any] struct {
	name string
	get  func(*T) any
	set  func(*T, any) // nil for read-only fields
}

type schema[T any] struct {
	id     func(*T) *bson.ObjectID
	fields []field[T]
}

// toRecord serializes an entity to a bson document. The identity is
// included under "_id" only when set.
func toRecord[T any](e *T, s schema[T]) bson.M {
	rec := bson.M{}
	for _, f := range s.fields {
		rec[f.name] = f.get(e)
	}
	if id := *s.id(e); !id.IsZero() {
		rec["_id"] = id
	}
	return rec
}

// fromRecord builds an entity from a bson document. A nil record yields
// a nil entity: absence is a normal outcome, not a failure. Only fields
// declared in the schema are copied; everything else in the record is
// ignored, and declared fields missing from the record keep their zero
// value.
func fromRecord[T any](rec bson.M, s schema[T]) *T {
	if rec == nil {
		return nil
	}
	e := new(T)
	for _, f := range s.fields {
		if f.set == nil {
			continue
		}
		if v, ok := rec[f.name]; ok && v != nil {
			f.set(e, v)
		}
	}
	if v, ok := rec["_id"]; ok && v != nil {
		if id, ok := v.(bson.ObjectID); ok {
			*s.id(e) = id
		}
	}
	return e
}

func fromRecords[T any](recs []bson.M, s schema[T]) []*T {
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		if e := fromRecord(rec, s); e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Conversion helpers. Decoding into bson.M loses Go-side field types,
// so setters coerce what the driver hands back. A value of an
// unexpected type leaves the field at its default.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case bson.A:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asTime(v any) time.Time {
	switch vv := v.(type) {
	case time.Time:
		return vv.UTC()
	case bson.DateTime:
		return vv.Time().UTC()
	}
	return time.Time{}
}

func asObjectID(v any) bson.ObjectID {
	id, _ := v.(bson.ObjectID)
	return id
}
