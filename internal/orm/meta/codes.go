package meta

import "github.com/wp-orm/wpmeta/internal/orm/result"

// Logic-level failures: the caller asked for something the current state does not allow.
const (
	// CodeMetaExists is returned when creating a value already stored under the key
	CodeMetaExists result.Code = "meta_exists"
	// CodeMetaUpdateFailed is returned when updating a key that has no value, or more than one
	CodeMetaUpdateFailed result.Code = "meta_update_failed"
	// CodeMetaDeleteFailed is returned when deleting a key or value that is not there
	CodeMetaDeleteFailed result.Code = "meta_delete_failed"
	// CodeInvalidMetaKey is returned for an empty meta key
	CodeInvalidMetaKey result.Code = "invalid_meta_key"
	// CodeInvalidMetaValue is returned when a nil value is written
	CodeInvalidMetaValue result.Code = "invalid_meta_value"
	// CodeMissingObjectID is returned when a write is attempted before the owner has an ID
	CodeMissingObjectID result.Code = "missing_object_id"
	// CodeObjectIDMismatch is returned when a cache bound to one object is persisted to another
	CodeObjectIDMismatch result.Code = "object_id_mismatch"
)

// Store-level failures: the store rejected a well-formed operation.
const (
	// CodeAddMetadataFailed is returned when the store add fails
	CodeAddMetadataFailed result.Code = "add_metadata_failed"
	// CodeUpdateMetadataFailed is returned when the store update fails
	CodeUpdateMetadataFailed result.Code = "update_metadata_failed"
	// CodeDeleteMetadataFailed is returned when the store delete fails
	CodeDeleteMetadataFailed result.Code = "delete_metadata_failed"
)

// Successful store writes.
const (
	CodeMetaCreated result.Code = "meta_created"
	CodeMetaUpdated result.Code = "meta_updated"
	CodeMetaDeleted result.Code = "meta_deleted"
)

// Staged changes: accepted by the cache, not yet written.
const (
	CodeMetaCreateStaged  result.Code = "meta_create_staged"
	CodeMetaUpdateStaged  result.Code = "meta_update_staged"
	CodeMetaReplaceStaged result.Code = "meta_replace_staged"
	CodeMetaDeleteStaged  result.Code = "meta_delete_staged"
	CodeMetaUnchanged     result.Code = "meta_unchanged"
)
