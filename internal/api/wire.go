// Package api carries remote.Client over HTTP.
//
// Server exposes any remote.Client under /api using gin. Client is the
// matching remote.Client implementation. Every response is a JSON object
// with a "success" flag; failures add "error" and a machine-readable "code"
// that Client maps back to the remote sentinels.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jbweber/thoth/internal/provision"
	"github.com/jbweber/thoth/internal/remote"
)

// errRunNotDismissable is returned for a run that is still running or no
// longer holds the orchestrator.
var errRunNotDismissable = errors.New("run is not the finished active run")

const (
	codeNotFound            = "not_found"
	codeAlreadyExists       = "already_exists"
	codeAddressNotAvailable = "address_not_available"
	codeValidation          = "validation"
	codePrecondition        = "precondition"
	codeUnavailable         = "unavailable"
	codeTimeout             = "timeout"
	codeInternal            = "internal"
)

// addressNotAvailableMessage is what browsers and scripts have always
// matched on for a VM without a lease yet.
const addressNotAvailableMessage = "No IP addresses found. VM may still be booting."

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

type listResponse struct {
	envelope
	VMs        []remote.ResourceSummary `json:"vms"`
	TotalCount int                      `json:"totalCount"`
}

type detailResponse struct {
	envelope
	Name    string       `json:"name"`
	State   remote.State `json:"state"`
	Running bool         `json:"running"`
	Info    string       `json:"info"`
	XML     string       `json:"xml"`
}

type statusResponse struct {
	envelope
	State   remote.State `json:"state"`
	Running bool         `json:"running"`
}

type statsResponse struct {
	envelope
	Stats *remote.ResourceStats `json:"stats"`
}

type consoleResponse struct {
	envelope
	remote.ConsoleEndpoint
}

type addressResponse struct {
	envelope
	PrimaryIP  string             `json:"primaryIP"`
	Interfaces []remote.Interface `json:"interfaces"`
}

type snapshotsResponse struct {
	envelope
	Snapshots []remote.Snapshot `json:"snapshots"`
}

type systemResponse struct {
	envelope
	remote.SystemInfo
}

type actionResponse struct {
	envelope
	Output string `json:"output"`
}

type deployRequest struct {
	Hostname   string `json:"hostname"`
	Memory     int    `json:"memory,omitempty"`
	VCPUs      int    `json:"vcpus,omitempty"`
	Disk       int    `json:"disk,omitempty"`
	Network    string `json:"network,omitempty"`
	Image      string `json:"image,omitempty"`
	Username   string `json:"username"`
	AuthMethod string `json:"authMethod,omitempty"`
	Password   string `json:"password,omitempty"`
	SSHKey     string `json:"sshKey,omitempty"`
	Flavor     string `json:"flavor,omitempty"`
}

// provisioningRequest keeps only the credential named by AuthMethod. With no
// AuthMethod both fields pass through and validation decides.
func (d deployRequest) provisioningRequest() remote.ProvisioningRequest {
	req := remote.ProvisioningRequest{
		Hostname: d.Hostname,
		MemoryMB: d.Memory,
		VCPUs:    d.VCPUs,
		DiskGB:   d.Disk,
		Image:    d.Image,
		Network:  d.Network,
		Username: d.Username,
		Password: d.Password,
		SSHKey:   d.SSHKey,
		Flavor:   d.Flavor,
	}
	switch remote.AuthMethod(d.AuthMethod) {
	case remote.AuthPassword:
		req.SSHKey = ""
	case remote.AuthSSHKey:
		req.Password = ""
	}
	return req
}

func newDeployRequest(req remote.ProvisioningRequest) deployRequest {
	d := deployRequest{
		Hostname: req.Hostname,
		Memory:   req.MemoryMB,
		VCPUs:    req.VCPUs,
		Disk:     req.DiskGB,
		Network:  req.Network,
		Image:    req.Image,
		Username: req.Username,
		Password: req.Password,
		SSHKey:   req.SSHKey,
		Flavor:   req.Flavor,
	}
	switch {
	case req.Password != "" && req.SSHKey == "":
		d.AuthMethod = string(remote.AuthPassword)
	case req.SSHKey != "" && req.Password == "":
		d.AuthMethod = string(remote.AuthSSHKey)
	}
	return d
}

type deployResponse struct {
	envelope
	VMName string `json:"vmName"`
}

type runResponse struct {
	envelope
	provision.RunStatus
}

type runsResponse struct {
	envelope
	Runs []provision.RunStatus `json:"runs"`
}

type snapshotRequest struct {
	SnapshotName string `json:"snapshotName"`
	Description  string `json:"description,omitempty"`
}

type cloneRequest struct {
	CloneName string `json:"cloneName"`
}

// statusFor maps an error to its HTTP status and wire code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, remote.ErrAddressNotAvailable):
		return http.StatusNotFound, codeAddressNotAvailable
	case errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, remote.ErrAlreadyExists):
		return http.StatusConflict, codeAlreadyExists
	}

	switch remote.KindOf(err) {
	case remote.KindValidation:
		return http.StatusBadRequest, codeValidation
	case remote.KindPreconditionNotMet:
		return http.StatusConflict, codePrecondition
	case remote.KindRemoteUnavailable:
		return http.StatusServiceUnavailable, codeUnavailable
	case remote.KindTimeout:
		return http.StatusGatewayTimeout, codeTimeout
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// errorFor rebuilds a typed error from a failed response.
func errorFor(op, resource string, status int, env envelope) error {
	msg := env.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	cause := errors.New(msg)

	switch env.Code {
	case codeAddressNotAvailable:
		return remote.Rejected(op, resource, remote.ErrAddressNotAvailable)
	case codeNotFound:
		return remote.Rejected(op, resource, fmt.Errorf("%w: %s", remote.ErrNotFound, msg))
	case codeAlreadyExists:
		return remote.Rejected(op, resource, fmt.Errorf("%w: %s", remote.ErrAlreadyExists, msg))
	case codeTimeout:
		return remote.Timeout(op, resource, cause)
	case codePrecondition:
		return remote.Precondition(op, resource, cause)
	}

	switch {
	case status == http.StatusBadRequest:
		return remote.Validation(op, cause)
	case status == http.StatusServiceUnavailable:
		return remote.Unavailable(op, resource, cause)
	case status == http.StatusGatewayTimeout:
		return remote.Timeout(op, resource, cause)
	default:
		return remote.Rejected(op, resource, cause)
	}
}
