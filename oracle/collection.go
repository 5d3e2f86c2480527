package oracle

import (
	"github.com/tomyedwab/ocidb/oci"
)

// BindCollection is a native collection of a database-side collection type,
// bound with Collection.
//
// A BindCollection is not safe for concurrent use. Callers must serialize
// access to a given instance.
type BindCollection struct {
	lib      oci.Library
	typeName string
	typeInfo oci.TypeInfo
	handle   oci.Coll
}

// NewBindCollection creates an empty collection of the named collection
// type, resolved on the given session.
func NewBindCollection(s Session, typeName string) (*BindCollection, error) {
	sess := s.base()
	conn, err := sess.handle()
	if err != nil {
		return nil, err
	}
	lib := sess.lib
	ti, err := lib.TypeInfoGet(conn, typeName, oci.TypeInfoType)
	if err != nil {
		return nil, wrapNative(lib, KindExecutionFailed, err, "", "failed to describe type %s", typeName)
	}
	coll, err := lib.CollCreate(ti)
	if err != nil {
		lib.TypeInfoFree(ti)
		return nil, wrapNative(lib, KindExecutionFailed, err, "", "failed to create collection of %s", typeName)
	}
	return &BindCollection{lib: lib, typeName: typeName, typeInfo: ti, handle: coll}, nil
}

func (c *BindCollection) TypeName() string {
	return c.typeName
}

func (c *BindCollection) AppendInt(v int64) error {
	return c.append(func(e oci.Elem) error { return c.lib.ElemSetInt(e, v) })
}

func (c *BindCollection) AppendDouble(v float64) error {
	return c.append(func(e oci.Elem) error { return c.lib.ElemSetDouble(e, v) })
}

func (c *BindCollection) AppendString(v string) error {
	return c.append(func(e oci.Elem) error { return c.lib.ElemSetString(e, v) })
}

func (c *BindCollection) AppendBool(v bool) error {
	return c.append(func(e oci.Elem) error { return c.lib.ElemSetBoolean(e, v) })
}

func (c *BindCollection) append(set func(oci.Elem) error) error {
	if c.handle == "" {
		return newError(KindNotExecuted, "collection of %s is closed", c.typeName)
	}
	e, err := c.lib.ElemCreate(c.typeInfo)
	if err != nil {
		return wrapNative(c.lib, KindExecutionFailed, err, "", "failed to create element of %s", c.typeName)
	}
	defer c.lib.ElemFree(e)

	if err := set(e); err != nil {
		return wrapNative(c.lib, KindExecutionFailed, err, "", "failed to set element of %s", c.typeName)
	}
	if err := c.lib.CollAppend(c.handle, e); err != nil {
		return wrapNative(c.lib, KindExecutionFailed, err, "", "failed to append to %s", c.typeName)
	}
	return nil
}

// Len returns the number of elements.
func (c *BindCollection) Len() int {
	if c.handle == "" {
		return 0
	}
	return int(c.lib.CollSize(c.handle))
}

// Close frees the collection and its type descriptor.
func (c *BindCollection) Close() error {
	if c.handle == "" {
		return nil
	}
	err := c.lib.CollFree(c.handle)
	c.lib.TypeInfoFree(c.typeInfo)
	c.handle = ""
	if err != nil {
		return wrapNative(c.lib, KindExecutionFailed, err, "", "failed to free collection of %s", c.typeName)
	}
	return nil
}
