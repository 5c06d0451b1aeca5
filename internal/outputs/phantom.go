package outputs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"alertprocessor/internal/alert"
	"alertprocessor/internal/dispatch"
	"alertprocessor/internal/external"
	"alertprocessor/internal/types"
)

type phantomCredentials struct {
	URL       string             `json:"url" validate:"required,url"`
	AuthToken types.SecretString `json:"ph_auth_token" validate:"required"`
}

type phantomContainer struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Label       string `json:"label"`
}

type phantomArtifact struct {
	ContainerID          int64       `json:"container_id"`
	Label                string      `json:"label"`
	Name                 string      `json:"name"`
	SourceDataIdentifier string      `json:"source_data_identifier"`
	CEF                  alert.Value `json:"cef"`
}

type phantomResponse struct {
	ID      int64  `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// phantomDispatcher opens a container for the rule and attaches the alert
// record to it as an artifact.
type phantomDispatcher struct {
	creds  serviceCredentials
	client *external.BaseClient
	newID  func() string
}

func newPhantomFactory(deps Deps) dispatch.Factory {
	return func(_ context.Context, _ dispatch.Env) (dispatch.Dispatcher, error) {
		if deps.HTTP == nil {
			return nil, errMissingDep(ServicePhantom, "an HTTP client")
		}
		if deps.Credentials == nil {
			return nil, errMissingDep(ServicePhantom, "a credentials store")
		}
		return &phantomDispatcher{
			creds:  credsFor(deps, ServicePhantom),
			client: deps.HTTP,
			newID:  deps.NewID,
		}, nil
	}
}

func (d *phantomDispatcher) Dispatch(ctx context.Context, descriptor, ruleName string, a *alert.Alert) error {
	var creds phantomCredentials
	if err := d.creds.load(ctx, descriptor, &creds); err != nil {
		return err
	}

	base := strings.TrimRight(creds.URL, "/")
	header := http.Header{}
	header.Set("ph-auth-token", creds.AuthToken.Unmask())

	containerID, err := d.post(ctx, base+"/rest/container", phantomContainer{
		Name:        ruleName,
		Description: description(ruleName, a),
		Label:       "alert",
	}, header)
	if err != nil {
		return fmt.Errorf("phantom: create container: %w", err)
	}

	if _, err := d.post(ctx, base+"/rest/artifact", phantomArtifact{
		ContainerID:          containerID,
		Label:                "event",
		Name:                 "Alert Artifact",
		SourceDataIdentifier: d.newID(),
		CEF:                  a.Record(),
	}, header); err != nil {
		return fmt.Errorf("phantom: add artifact to container %d: %w", containerID, err)
	}
	return nil
}

// post sends payload and returns the id Phantom assigned to the new object.
func (d *phantomDispatcher) post(ctx context.Context, url string, payload any, header http.Header) (int64, error) {
	body, err := d.client.PostJSON(ctx, url, payload, header)
	if err != nil {
		return 0, err
	}

	var resp phantomResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamRejected, "unreadable phantom response", err)
	}
	if resp.ID == 0 {
		msg := resp.Message
		if msg == "" {
			msg = "no id returned"
		}
		return 0, types.NewAppError(types.ErrCodeUpstreamRejected, "phantom rejected request: "+msg, nil)
	}
	return resp.ID, nil
}

var _ dispatch.Dispatcher = (*phantomDispatcher)(nil)
