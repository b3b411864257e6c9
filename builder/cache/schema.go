package cache

// BoltDB bucket names
const (
	BucketBuilds = "builds" // {started_at unix nano, big endian} -> BuildRecord
	BucketMeta   = "meta"   // schema_version, last_build_id

	// Meta keys
	KeySchemaVersion = "schema_version"
	KeyLastBuildID   = "last_build_id"
)

// SchemaVersion is bumped when BuildRecord changes incompatibly.
const SchemaVersion = 1

// AllBuckets returns all bucket names for initialization
func AllBuckets() []string {
	return []string{
		BucketBuilds,
		BucketMeta,
	}
}
