package migrations

import "embed"

// PostgresFS embeds the position report schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the volatility snapshot schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
