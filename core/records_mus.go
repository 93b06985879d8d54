package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Hand-maintained MUS serializers for the stored record types. Field order is
// part of the on-disk format; append new fields, never reorder.

var (
	float32SliceMUS = ord.NewSliceSer[float32](varint.Float32)
	stringMapMUS    = ord.NewMapSer[string, string](ord.String, ord.String)
)

// IDMUS serializes IDs as varint uint64.
var IDMUS = idMUS{}

type idMUS struct{}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idMUS) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

// TermMUS serializes Term records. Timestamps use microsecond precision.
var TermMUS = termMUS{}

type termMUS struct{}

func (termMUS) Marshal(t Term, bs []byte) (n int) {
	n = IDMUS.Marshal(t.Id, bs)
	n += ord.String.Marshal(t.MarketID, bs[n:])
	n += ord.String.Marshal(t.Domain, bs[n:])
	n += ord.String.Marshal(t.BaseTerm, bs[n:])
	n += ord.String.Marshal(t.Language, bs[n:])
	n += ord.String.Marshal(t.LocalizedTerm, bs[n:])
	n += ord.String.Marshal(t.RouteTarget, bs[n:])
	n += IDMUS.Marshal(t.EntityRef, bs[n:])
	n += stringMapMUS.Marshal(t.Monetization, bs[n:])
	n += stringMapMUS.Marshal(t.Metadata, bs[n:])
	n += float32SliceMUS.Marshal(t.Embedding, bs[n:])
	n += raw.TimeUnixMicro.Marshal(t.LastEmbeddedAt, bs[n:])
	n += raw.TimeUnixMicro.Marshal(t.InsertedAt, bs[n:])
	n += raw.TimeUnixMicro.Marshal(t.UpdatedAt, bs[n:])
	return n
}

func (termMUS) Unmarshal(bs []byte) (t Term, n int, err error) {
	var n1 int
	t.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	if t.MarketID, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.Domain, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.BaseTerm, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.Language, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.LocalizedTerm, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.RouteTarget, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.EntityRef, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.Monetization, n1, err = stringMapMUS.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.Metadata, n1, err = stringMapMUS.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.Embedding, n1, err = float32SliceMUS.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.LastEmbeddedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.InsertedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	if t.UpdatedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return t, n + n1, err
	}
	n += n1
	return t, n, nil
}

func (termMUS) Size(t Term) (size int) {
	size = IDMUS.Size(t.Id)
	size += ord.String.Size(t.MarketID)
	size += ord.String.Size(t.Domain)
	size += ord.String.Size(t.BaseTerm)
	size += ord.String.Size(t.Language)
	size += ord.String.Size(t.LocalizedTerm)
	size += ord.String.Size(t.RouteTarget)
	size += IDMUS.Size(t.EntityRef)
	size += stringMapMUS.Size(t.Monetization)
	size += stringMapMUS.Size(t.Metadata)
	size += float32SliceMUS.Size(t.Embedding)
	size += raw.TimeUnixMicro.Size(t.LastEmbeddedAt)
	size += raw.TimeUnixMicro.Size(t.InsertedAt)
	size += raw.TimeUnixMicro.Size(t.UpdatedAt)
	return size
}

func (s termMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

// DirectoryEntityMUS serializes DirectoryEntity records.
var DirectoryEntityMUS = directoryEntityMUS{}

type directoryEntityMUS struct{}

func (directoryEntityMUS) Marshal(e DirectoryEntity, bs []byte) (n int) {
	n = IDMUS.Marshal(e.Id, bs)
	n += ord.String.Marshal(e.MarketID, bs[n:])
	n += ord.String.Marshal(e.Category, bs[n:])
	n += ord.String.Marshal(e.Subcategory, bs[n:])
	n += ord.String.Marshal(e.City, bs[n:])
	n += ord.String.Marshal(e.Address, bs[n:])
	n += varint.Float64.Marshal(e.Latitude, bs[n:])
	n += varint.Float64.Marshal(e.Longitude, bs[n:])
	n += ord.String.Marshal(e.Phone, bs[n:])
	n += ord.String.Marshal(e.Website, bs[n:])
	n += stringMapMUS.Marshal(e.LocalizedData, bs[n:])
	n += stringMapMUS.Marshal(e.Metadata, bs[n:])
	n += raw.TimeUnixMicro.Marshal(e.InsertedAt, bs[n:])
	n += raw.TimeUnixMicro.Marshal(e.UpdatedAt, bs[n:])
	return n
}

func (directoryEntityMUS) Unmarshal(bs []byte) (e DirectoryEntity, n int, err error) {
	var n1 int
	e.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	strFields := []*string{
		&e.MarketID, &e.Category, &e.Subcategory, &e.City, &e.Address,
	}
	for _, f := range strFields {
		if *f, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
			return e, n + n1, err
		}
		n += n1
	}
	if e.Latitude, n1, err = varint.Float64.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	if e.Longitude, n1, err = varint.Float64.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	if e.Phone, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	if e.Website, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	if e.LocalizedData, n1, err = stringMapMUS.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	if e.Metadata, n1, err = stringMapMUS.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	if e.InsertedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	if e.UpdatedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return e, n + n1, err
	}
	n += n1
	return e, n, nil
}

func (directoryEntityMUS) Size(e DirectoryEntity) (size int) {
	size = IDMUS.Size(e.Id)
	size += ord.String.Size(e.MarketID)
	size += ord.String.Size(e.Category)
	size += ord.String.Size(e.Subcategory)
	size += ord.String.Size(e.City)
	size += ord.String.Size(e.Address)
	size += varint.Float64.Size(e.Latitude)
	size += varint.Float64.Size(e.Longitude)
	size += ord.String.Size(e.Phone)
	size += ord.String.Size(e.Website)
	size += stringMapMUS.Size(e.LocalizedData)
	size += stringMapMUS.Size(e.Metadata)
	size += raw.TimeUnixMicro.Size(e.InsertedAt)
	size += raw.TimeUnixMicro.Size(e.UpdatedAt)
	return size
}

func (s directoryEntityMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

// TruncateToMicro truncates a timestamp to the serialized precision so
// round-trips compare equal.
func TruncateToMicro(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}
