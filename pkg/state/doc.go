// Package state persists scoped setting overrides and serves the settings
// write path.
//
// Responsibilities:
//   - guard.RowStore implementations provide the atomic conditional update.
//     MemoryRows lives here; SQL and badger backends live in sub-packages.
//   - ScopeStore maps (key, scope, owner) onto rows keyed by Ref.Identifier()
//     and applies the version guard to every write.
//   - Service parses values against the definition catalog, writes through the
//     ScopeStore and answers with the refreshed resolution table.
//
// Data flow:
//
//	Service.Write -> Catalog.Parse -> ScopeStore.WriteWithVersion -> RowStore
//	Service.Table -> ScopeStore.ListAll -> Catalog.Resolve
//
// Deterministic keys:
//
//	Ref.Identifier() yields `global/<key>` or `user/<owner>/<key>`. Keys and
//	owners may not contain '/', so ParseIdentifier can always invert it.
package state
