package metadata

// Action trigger sources.
const (
	TriggerUI          = "UI"
	TriggerVirtualHook = "VIRTUAL_HOOK"
)

// Action types handled by the executor.
const (
	ActionCreateItem       = "CREATE_ITEM"
	ActionEditItem         = "EDIT_ITEM"
	ActionDeleteItem       = "DELETE_ITEM"
	ActionDBFetchField     = "DB_FETCH_FIELD"
	ActionMathOp           = "MATH_OP"
	ActionSendNotification = "SEND_NOTIFICATION"
	ActionWebhookOut       = "WEBHOOK_OUT"
	ActionGenerateCSV      = "GENERATE_CSV"
	ActionGeneratePDF      = "GENERATE_PDF"
	ActionNavigate         = "NAVIGATE"
	ActionEmail            = "EMAIL"
	ActionAIClassify       = "AI_CLASSIFY"
	ActionPythonScript     = "PYTHON_SCRIPT"
)

type Action struct {
	ID             string         `json:"id"`
	Tenant         string         `json:"tenant"`
	Name           string         `json:"name"`
	TriggerSource  string         `json:"trigger_source"` // UI | VIRTUAL_HOOK
	TriggerContext string         `json:"trigger_context,omitempty"`
	ActionType     string         `json:"action_type"`
	Config         map[string]any `json:"config,omitempty"`
}
