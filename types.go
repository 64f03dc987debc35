package bracefmt

import "github.com/jward/bracefmt/internal/store"

// Public type aliases for internal store types used in the QueryBuilder API.
// External consumers use these names; no conversion is needed.

type Store = store.Store
type File = store.File
type Run = store.Run
