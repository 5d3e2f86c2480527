package host

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const catalogSchema = `
CREATE TABLE IF NOT EXISTS oci_users (
	name TEXT PRIMARY KEY NOT NULL,
	password_hash TEXT NOT NULL,
	sysdba INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS oci_types (
	name TEXT PRIMARY KEY NOT NULL,
	kind TEXT NOT NULL,
	elem_type TEXT NOT NULL DEFAULT '',
	attributes TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS oci_queues (
	name TEXT PRIMARY KEY NOT NULL,
	payload_type TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS oci_queue_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	msgid BLOB NOT NULL UNIQUE,
	queue TEXT NOT NULL,
	correlation TEXT NOT NULL DEFAULT '',
	payload BLOB,
	enq_time INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_oci_queue_messages_queue ON oci_queue_messages(queue, seq);
CREATE TABLE IF NOT EXISTS dual (
	dummy TEXT
);
`

const seedDualSql = `
INSERT INTO dual (dummy) SELECT 'X' WHERE NOT EXISTS (SELECT 1 FROM dual);
`

const seedRawTypeSql = `
INSERT OR IGNORE INTO oci_types (name, kind) VALUES ('RAW', 'raw');
`

// Catalog type kinds.
const (
	typeKindObject     = "object"
	typeKindCollection = "collection"
)

type userRecord struct {
	Name         string `db:"name"`
	PasswordHash string `db:"password_hash"`
	SysDBA       bool   `db:"sysdba"`
}

type typeRecord struct {
	Name       string `db:"name"`
	Kind       string `db:"kind"`
	ElemType   string `db:"elem_type"`
	Attributes string `db:"attributes"`
}

type queueRecord struct {
	Name        string `db:"name"`
	PayloadType string `db:"payload_type"`
}

// DBInit creates the catalog tables used by the host.
func DBInit(db *sqlx.DB) error {
	if _, err := db.Exec(catalogSchema); err != nil {
		return err
	}
	if _, err := db.Exec(seedDualSql); err != nil {
		return err
	}
	_, err := db.Exec(seedRawTypeSql)
	return err
}

func passwordHash(pwd string) string {
	hash := sha256.Sum256([]byte(pwd))
	return hex.EncodeToString(hash[:])
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// CreateUser creates or replaces a database account.
func (h *Host) CreateUser(name, password string, sysdba bool) error {
	_, err := h.db.Exec(`
		INSERT INTO oci_users (name, password_hash, sysdba) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET password_hash = $2, sysdba = $3`,
		normalizeName(name), passwordHash(password), sysdba)
	return errors.Wrapf(err, "host: create user %s", name)
}

// DefineObjectType registers an object type with the given attribute names.
func (h *Host) DefineObjectType(name string, attributes ...string) error {
	attrs, err := json.Marshal(attributes)
	if err != nil {
		return errors.Wrap(err, "host: encode attributes")
	}
	_, err = h.db.Exec(`
		INSERT INTO oci_types (name, kind, attributes) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET kind = $2, elem_type = '', attributes = $3`,
		normalizeName(name), typeKindObject, string(attrs))
	return errors.Wrapf(err, "host: define type %s", name)
}

// DefineCollectionType registers a collection type (TABLE OF elemType).
func (h *Host) DefineCollectionType(name, elemType string) error {
	_, err := h.db.Exec(`
		INSERT INTO oci_types (name, kind, elem_type) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET kind = $2, elem_type = $3, attributes = '[]'`,
		normalizeName(name), typeKindCollection, normalizeName(elemType))
	return errors.Wrapf(err, "host: define type %s", name)
}

// CreateQueue creates a queue carrying payloads of the given type.
func (h *Host) CreateQueue(name, payloadType string) error {
	var t typeRecord
	if err := h.db.Get(&t, "SELECT * FROM oci_types WHERE name = $1", normalizeName(payloadType)); err != nil {
		return errors.Wrapf(err, "host: payload type %s", payloadType)
	}
	_, err := h.db.Exec(`
		INSERT INTO oci_queues (name, payload_type) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET payload_type = $2`,
		normalizeName(name), t.Name)
	return errors.Wrapf(err, "host: create queue %s", name)
}

// QueueDepth reports the number of messages waiting in a queue.
func (h *Host) QueueDepth(name string) (int, error) {
	var n int
	err := h.db.Get(&n, "SELECT COUNT(*) FROM oci_queue_messages WHERE queue = $1", normalizeName(name))
	return n, err
}
