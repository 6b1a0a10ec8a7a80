package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Discovery Errors (B100-B119)
	// ============================================

	"B100": {
		Category: CategoryDiscovery,
		Message:  "Pagelet discovery failed",
	},
	"B101": {
		Category: CategoryDiscovery,
		Message:  "Pagelet has no name",
		Detail:   "Every pagelet needs a unique name; it is used for placeholders and fragment ids.",
	},
	"B102": {
		Category: CategoryDiscovery,
		Message:  "Duplicate pagelet name",
	},
	"B110": {
		Category: CategoryDiscovery,
		Message:  "Invalid pagelet path",
	},
	"B111": {
		Category: CategoryDiscovery,
		Message:  "Invalid pagelet mode",
		Detail:   "Mode must be one of render, async or pipeline.",
	},
	"B112": {
		Category: CategoryDiscovery,
		Message:  "Invalid HTTP method",
	},
	"B113": {
		Category: CategoryDiscovery,
		Message:  "Pagelet transform hook failed",
	},
	"B114": {
		Category: CategoryDiscovery,
		Message:  "Pagelet has nothing to render",
		Detail:   "Declare a View, or give the pagelet a Producer that implements Render.",
	},

	// ============================================
	// Plugin Errors (B120-B139)
	// ============================================

	"B120": {
		Category: CategoryPlugin,
		Message:  "Plugin should be specified with a name",
	},
	"B121": {
		Category: CategoryPlugin,
		Message:  "Plugin is missing a client or server hook",
	},
	"B122": {
		Category: CategoryPlugin,
		Message:  "Plugin name was already defined",
		Detail:   "Select a unique name for each plugin.",
	},
	"B123": {
		Category: CategoryPlugin,
		Message:  "Plugin server hook failed",
	},

	// ============================================
	// Configuration Errors (B140-B159)
	// ============================================

	"B140": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
	},
	"B141": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
	},
	"B142": {
		Category: CategoryConfig,
		Message:  "Unsupported configuration format",
		Detail:   "Configuration files must end in .json, .yaml or .yml.",
	},

	// ============================================
	// Asset Errors (B160-B179)
	// ============================================

	"B160": {
		Category: CategoryAssets,
		Message:  "Asset catalog failed",
	},
	"B161": {
		Category: CategoryAssets,
		Message:  "Invalid asset reference",
	},
	"B162": {
		Category: CategoryAssets,
		Message:  "Asset manifest could not be loaded",
	},
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
// It is meant to be called from init functions only.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
