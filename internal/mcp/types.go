package mcp

import (
	"github.com/mindlogger/applet-engine/internal/domain/applet"
)

type CreateAppletParams struct {
	Applet applet.Spec `json:"applet"`
}

type CreateAppletResult struct {
	Applet  *applet.Applet `json:"applet"`
	Version string         `json:"version"`
}

type UpdateAppletParams struct {
	ID string `json:"id"`
	// ExpectedVersion is the optimistic-concurrency token. Omit to
	// update whatever version is live.
	ExpectedVersion string      `json:"expected_version,omitempty"`
	Applet          applet.Spec `json:"applet"`
}

type UpdateAppletResult struct {
	ID        string               `json:"id"`
	Version   string               `json:"version"`
	Unchanged bool                 `json:"unchanged"`
	Changes   *applet.ChangeRecord `json:"changes,omitempty"`
}

type GetAppletParams struct {
	ID string `json:"id"`
}

type GetAppletResult struct {
	Applet *applet.Applet `json:"applet"`
}

type GetAppletVersionParams struct {
	// IDVersion addresses one snapshot as "{uuid}_{version}".
	IDVersion string `json:"id_version"`
}

type GetAppletVersionResult struct {
	Applet *applet.AppletHistory `json:"applet"`
}

type ListAppletVersionsParams struct {
	ID string `json:"id"`
}

type ListAppletVersionsResult struct {
	ID       string                `json:"id"`
	Versions []applet.VersionEntry `json:"versions"`
}

type DiffAppletVersionsParams struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

type DiffAppletVersionsResult struct {
	ID      string               `json:"id"`
	From    string               `json:"from"`
	To      string               `json:"to"`
	Changes *applet.ChangeRecord `json:"changes"`
}
