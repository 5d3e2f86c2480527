package host

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/tomyedwab/ocidb/oci"
)

type typeInfo struct {
	sess *session
	name string
	kind oci.TypeInfoKind
	rec  typeRecord // set for oci.TypeInfoType
}

type collection struct {
	typ   *typeInfo
	elems []any
}

type element struct {
	typ   *typeInfo
	value any
}

func (h *Host) TypeInfoGet(c oci.Conn, name string, kind oci.TypeInfoKind) (oci.TypeInfo, error) {
	s, err := lookup[*session](h, string(c), "connection")
	if err != nil {
		return "", err
	}
	ti := &typeInfo{sess: s, name: normalizeName(name), kind: kind}

	switch kind {
	case oci.TypeInfoType:
		err = h.db.Get(&ti.rec, "SELECT * FROM oci_types WHERE name = $1", ti.name)
	case oci.TypeInfoTable, oci.TypeInfoView:
		objType := "table"
		if kind == oci.TypeInfoView {
			objType = "view"
		}
		ctx, done := s.call()
		var found string
		err = s.conn.GetContext(ctx, &found,
			"SELECT name FROM sqlite_master WHERE type = $1 AND upper(name) = $2", objType, ti.name)
		done()
	default:
		return "", driverError(drvTypeMismatch, "unknown type info kind %d", kind)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "", serverError(oraNoSuchObject, "object %s does not exist", ti.name)
	}
	if err != nil {
		return "", sqlError(nil, err)
	}
	return oci.TypeInfo(h.register(ti)), nil
}

func (h *Host) TypeInfoFree(t oci.TypeInfo) error {
	if _, err := lookup[*typeInfo](h, string(t), "type info"); err != nil {
		return err
	}
	h.unregister(string(t))
	return nil
}

func (h *Host) CollCreate(t oci.TypeInfo) (oci.Coll, error) {
	ti, err := lookup[*typeInfo](h, string(t), "type info")
	if err != nil {
		return "", err
	}
	if ti.rec.Kind != typeKindCollection {
		return "", driverError(drvTypeMismatch, "%s is not a collection type", ti.name)
	}
	return oci.Coll(h.register(&collection{typ: ti})), nil
}

func (h *Host) CollFree(c oci.Coll) error {
	if _, err := lookup[*collection](h, string(c), "collection"); err != nil {
		return err
	}
	h.unregister(string(c))
	return nil
}

func (h *Host) CollAppend(c oci.Coll, e oci.Elem) error {
	coll, err := lookup[*collection](h, string(c), "collection")
	if err != nil {
		return err
	}
	el, err := lookup[*element](h, string(e), "element")
	if err != nil {
		return err
	}
	coll.elems = append(coll.elems, el.value)
	return nil
}

func (h *Host) CollSize(c oci.Coll) uint32 {
	coll, err := lookup[*collection](h, string(c), "collection")
	if err != nil {
		return 0
	}
	return uint32(len(coll.elems))
}

func (h *Host) ElemCreate(t oci.TypeInfo) (oci.Elem, error) {
	ti, err := lookup[*typeInfo](h, string(t), "type info")
	if err != nil {
		return "", err
	}
	return oci.Elem(h.register(&element{typ: ti})), nil
}

func (h *Host) ElemFree(e oci.Elem) error {
	if _, err := lookup[*element](h, string(e), "element"); err != nil {
		return err
	}
	h.unregister(string(e))
	return nil
}

func (h *Host) setElem(e oci.Elem, v any) error {
	el, err := lookup[*element](h, string(e), "element")
	if err != nil {
		return err
	}
	el.value = v
	return nil
}

func (h *Host) ElemSetInt(e oci.Elem, v int64) error {
	return h.setElem(e, v)
}

func (h *Host) ElemSetDouble(e oci.Elem, v float64) error {
	return h.setElem(e, v)
}

func (h *Host) ElemSetString(e oci.Elem, v string) error {
	return h.setElem(e, v)
}

func (h *Host) ElemSetBoolean(e oci.Elem, v bool) error {
	return h.setElem(e, v)
}
