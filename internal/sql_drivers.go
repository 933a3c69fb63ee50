package internal

import (
	// database/sql drivers for the sql and riverqueue publishers:
	// "mysql", "postgres" (lib/pq) and "pgx".
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)
