package store

import (
	"strconv"

	bolt "go.etcd.io/bbolt"

	"github.com/ayoisaiah/tally/internal/models"
)

// schemaVersion is the number of migrations a current database has applied.
const schemaVersion = 2

// migrations[i] upgrades a database from version i to i+1.
var migrations = []func(tx *bolt.Tx) error{
	createBuckets,
	indexRecordsByEnd,
}

func createBuckets(tx *bolt.Tx) error {
	for _, name := range []string{
		sampleBucket,
		eventBucket,
		eventIDBucket,
		recordBucket,
		pendingBucket,
	} {
		if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
			return err
		}
	}

	return nil
}

// indexRecordsByEnd builds the end-time index used for continuity lookups.
func indexRecordsByEnd(tx *bolt.Tx) error {
	idx, err := tx.CreateBucketIfNotExists([]byte(recordEndBucket))
	if err != nil {
		return err
	}

	return tx.Bucket([]byte(recordBucket)).ForEach(func(k, v []byte) error {
		rec, err := decode[models.RegistrationRecord](recordBucket, k, v)
		if err != nil {
			return err
		}

		return idx.Put(recordEndKey(rec), k)
	})
}

func schemaOf(meta *bolt.Bucket) (int, error) {
	v := meta.Get(keySchema)
	if v == nil {
		return 0, nil
	}

	return strconv.Atoi(string(v))
}

func (c *Client) migrate(tx *bolt.Tx) error {
	meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
	if err != nil {
		return err
	}

	current, err := schemaOf(meta)
	if err != nil {
		return err
	}

	if current > schemaVersion {
		return errUnknownSchema.Fmt(current, schemaVersion)
	}

	for i := current; i < len(migrations); i++ {
		if err := migrations[i](tx); err != nil {
			return err
		}
	}

	return meta.Put(keySchema, []byte(strconv.Itoa(schemaVersion)))
}

// SchemaVersion returns the schema version recorded in the database.
func (c *Client) SchemaVersion() (int, error) {
	var version int

	err := c.View(func(tx *bolt.Tx) error {
		var err error

		version, err = schemaOf(tx.Bucket([]byte(metaBucket)))

		return err
	})

	return version, err
}
