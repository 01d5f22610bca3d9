// Package access maps roles to permission keys and decides which screens
// and actions a session may reach.
package access

import "github.com/alfredjeanlab/gatepass/internal/model"

// Screen keys, in navigation order.
const (
	ScreenInwardPO          = "inward.po"
	ScreenInwardSubcontract = "inward.subcontract"
	ScreenInwardManual      = "inward.manual"
	ScreenOutwardBilling    = "outward.billing"
	ScreenOutwardRGP        = "outward.rgp"
	ScreenOutwardNRGP       = "outward.nrgp"
	ScreenChange            = "change"
	ScreenCancel            = "cancel"
	ScreenExit              = "exit"
	ScreenDisplay           = "display"
	ScreenPrint             = "print"
	ScreenReports           = "reports"
	ScreenSettings          = "settings"
)

// Action permission keys. Create keys are derived per kind with SaveKey.
const (
	KeyChangeFetch   = "change.fetch"
	KeyChangeSave    = "change.save"
	KeyCancelExecute = "cancel.execute"
	KeyExitExecute   = "exit.execute"
	KeyDisplayView   = "display.view"
	KeyPrintView     = "print.view"
	KeyReuseExecute  = "reuse.execute"
	KeyReportsExport = "reports.export"
	KeySettingsRoles = "settings.roles"
)

// AdminRole always holds the full catalog.
const AdminRole = "Admin"

// Permission is one entry of the permission catalog.
type Permission struct {
	Key    string `json:"key"`
	Screen string `json:"screen"`
	Title  string `json:"title"`
}

var catalog = []Permission{
	{SaveKey(model.KindInwardPO), ScreenInwardPO, "Create inward entry against purchase order"},
	{SaveKey(model.KindInwardSubcontract), ScreenInwardSubcontract, "Create subcontract inward entry"},
	{SaveKey(model.KindInwardManual), ScreenInwardManual, "Create manual inward entry"},
	{SaveKey(model.KindOutwardBilling), ScreenOutwardBilling, "Create outward entry against billing document"},
	{SaveKey(model.KindOutwardReturnable), ScreenOutwardRGP, "Create returnable gate pass"},
	{SaveKey(model.KindOutwardNonReturnable), ScreenOutwardNRGP, "Create non-returnable gate pass"},
	{KeyChangeFetch, ScreenChange, "Load entry for change"},
	{KeyChangeSave, ScreenChange, "Save changes to entry"},
	{KeyCancelExecute, ScreenCancel, "Cancel entry"},
	{KeyExitExecute, ScreenExit, "Record vehicle exit"},
	{KeyDisplayView, ScreenDisplay, "Display entry"},
	{KeyReuseExecute, ScreenDisplay, "Re-use entry as new draft"},
	{KeyPrintView, ScreenPrint, "Print entry"},
	{KeyReportsExport, ScreenReports, "Export gate register"},
	{KeySettingsRoles, ScreenSettings, "Manage roles"},
}

// SaveKey returns the permission key for creating entries of kind k.
func SaveKey(k model.DocumentKind) string {
	return k.Screen() + ".save"
}

// Catalog returns the full permission catalog.
func Catalog() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// CatalogKeys returns every permission key in catalog order.
func CatalogKeys() []string {
	keys := make([]string, len(catalog))
	for i, p := range catalog {
		keys[i] = p.Key
	}
	return keys
}

// Screens returns every screen key in navigation order.
func Screens() []string {
	var screens []string
	seen := make(map[string]bool)
	for _, p := range catalog {
		if !seen[p.Screen] {
			seen[p.Screen] = true
			screens = append(screens, p.Screen)
		}
	}
	return screens
}

// Known reports whether key is in the catalog.
func Known(key string) bool {
	for _, p := range catalog {
		if p.Key == key {
			return true
		}
	}
	return false
}
