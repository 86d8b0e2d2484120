package api

// v1 contains the public wire types of the installer and catalog APIs.

// SoftwareItem is one installable entry as served to clients.
type SoftwareItem struct {
	Key          string `json:"key" yaml:"key"`
	Name         string `json:"name" yaml:"name"`
	RequiresRoot bool   `json:"requires_root" yaml:"requires_root"`
	CheckCommand string `json:"checkCommand,omitempty" yaml:"check_command"`
	IconURL      string `json:"iconUrl" yaml:"icon_url"`
	ScriptURL    string `json:"scriptUrl,omitempty" yaml:"script_url"`
	Installed    bool   `json:"installed"`
}

type SoftwareList struct {
	Items []SoftwareItem `json:"items"`
}

type InstallResponse struct {
	TaskID string `json:"taskId"`
}

// TaskStatus reports one installation attempt. ReturnCode is nil while running.
type TaskStatus struct {
	Key        string `json:"key"`
	Running    bool   `json:"running"`
	ReturnCode *int   `json:"returnCode"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Stream event names used on the server-push log feed.
const (
	EventEnd     = "end"
	EventEndData = "done"
)
