package telemetry

import "github.com/google/uuid"

// Key names one typed telemetry datum.
type Key string

const (
	KeyJobID      Key = "job_id"
	KeyTaskID     Key = "task_id"
	KeyMachineID  Key = "machine_id"
	KeyInstanceID Key = "instance_id"
	KeyVersion    Key = "version"
	KeyRole       Key = "role"
	KeyScalesetID Key = "scaleset_id"
	KeyType       Key = "type"
	KeyToolName   Key = "tool_name"
	KeyError      Key = "error"
)

// Data is one key/value pair attached to a property or an event.
type Data struct {
	Key   Key
	Value string
}

func JobID(id uuid.UUID) Data      { return Data{Key: KeyJobID, Value: id.String()} }
func TaskID(id uuid.UUID) Data     { return Data{Key: KeyTaskID, Value: id.String()} }
func MachineID(id uuid.UUID) Data  { return Data{Key: KeyMachineID, Value: id.String()} }
func InstanceID(id uuid.UUID) Data { return Data{Key: KeyInstanceID, Value: id.String()} }
func Version(v string) Data        { return Data{Key: KeyVersion, Value: v} }
func Role(r string) Data           { return Data{Key: KeyRole, Value: r} }
func ScalesetID(name string) Data  { return Data{Key: KeyScalesetID, Value: name} }
func Type(t string) Data           { return Data{Key: KeyType, Value: t} }
func ToolName(name string) Data    { return Data{Key: KeyToolName, Value: name} }

func Error(err error) Data {
	if err == nil {
		return Data{Key: KeyError}
	}
	return Data{Key: KeyError, Value: err.Error()}
}

// Lookup returns the value of the first datum with key k.
func Lookup(data []Data, k Key) (string, bool) {
	for _, d := range data {
		if d.Key == k {
			return d.Value, true
		}
	}
	return "", false
}
