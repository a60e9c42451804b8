// Package all registers every audit store backend with the storage
// factory. Import it for side effects:
//
//	import _ "tripetl/internal/storage/all"
package all

import (
	_ "tripetl/internal/storage/postgres"
	_ "tripetl/internal/storage/sqlite"
)
