package permissions

import "github.com/iota-uz/legacy-migrator/pkg/authz"

const (
	ResourceLegacyImport = "legacy_import"
	ResourceReports      = "reports"

	ActionExecute = "execute"
	ActionRead    = "read"
)

var (
	LegacyImportObject = authz.ObjectName("migration", ResourceLegacyImport)
	ReportsObject      = authz.ObjectName("migration", ResourceReports)
)
