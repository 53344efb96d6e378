package honapi

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/hon-client/internal/pkg/parameter"
)

// ErrNoAuthentication is returned when there is no hOn session to talk to
var ErrNoAuthentication = errors.New("missing hOn login")

// ApiError is returned when the cloud rejects a command
type ApiError struct {
	Command    string
	ResultCode string
}

func (e *ApiError) Error() string {
	if e.ResultCode != "" {
		return fmt.Sprintf("can't send command %s: result code %s", e.Command, e.ResultCode)
	}
	return fmt.Sprintf("can't send command %s", e.Command)
}

// ApplianceInfo is the appliance description returned by the appliance
// list call
type ApplianceInfo map[string]interface{}

func (i ApplianceInfo) Get(key string) string {
	return parameter.ToString(i[key])
}

func (i ApplianceInfo) MacAddress() string { return i.Get("macAddress") }
func (i ApplianceInfo) Type() string       { return i.Get("applianceTypeName") }
func (i ApplianceInfo) ModelID() string    { return i.Get("applianceModelId") }

// Code is the appliance code, derived from the serial number when absent
func (i ApplianceInfo) Code() string {
	if code := i.Get("code"); code != "" {
		return code
	}

	serial := i.Get("serialNumber")
	n := 11
	if len(serial) < 18 {
		n = 8
	}
	if len(serial) < n {
		return serial
	}
	return serial[:n]
}

// CommandRequest is the body of a send command call
type CommandRequest struct {
	MacAddress          string                 `json:"macAddress"`
	Timestamp           string                 `json:"timestamp"`
	CommandName         string                 `json:"commandName"`
	TransactionID       string                 `json:"transactionId"`
	ApplianceOptions    map[string]interface{} `json:"applianceOptions"`
	Attributes          map[string]string      `json:"attributes"`
	AncillaryParameters map[string]string      `json:"ancillaryParameters"`
	Parameters          map[string]string      `json:"parameters"`
	ApplianceType       string                 `json:"applianceType"`
}

type API interface {
	WithTimeout(d time.Duration) API

	LoadAppliances(ctx context.Context) ([]ApplianceInfo, error)
	LoadCommands(ctx context.Context, info ApplianceInfo) (map[string]interface{}, error)
	LoadFavourites(ctx context.Context, info ApplianceInfo) ([]map[string]interface{}, error)
	LoadCommandHistory(ctx context.Context, info ApplianceInfo) ([]map[string]interface{}, error)
	LoadAttributes(ctx context.Context, info ApplianceInfo) (map[string]interface{}, error)
	LoadStatistics(ctx context.Context, info ApplianceInfo) (map[string]interface{}, error)
	SendCommand(ctx context.Context, info ApplianceInfo, req CommandRequest) (bool, error)
}
