// Package all links every backend into the binary. Import it for side
// effects where a database.Factory should know all implemented types.
package all

import (
	_ "github.com/koustreak/dblens/internal/database/demo"
	_ "github.com/koustreak/dblens/internal/database/mongodb"
	_ "github.com/koustreak/dblens/internal/database/mysql"
	_ "github.com/koustreak/dblens/internal/database/postgres"
	_ "github.com/koustreak/dblens/internal/database/sqlite"
)
