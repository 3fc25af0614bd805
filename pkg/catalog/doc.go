// Package catalog holds the versioned records that share the settings version
// guard without its automatic retry: statuses, relation sets and text
// templates. Each service surfaces VERSION_CONFLICT to the caller and raises
// BUSINESS_CONFLICT when a rule protects the record regardless of version.
package catalog
