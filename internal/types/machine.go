package types

type (
	MachineRegistration struct {
		// Registration key of the owning profile, handed out by the account layer
		RegistrationKey string `json:"registration_key" validate:"required,len=64,hexadecimal"`
		// Display name of the fuzzer running on this machine
		//
		// 256 bytes max
		FuzzerName string `json:"fuzzer_name"      validate:"required,max=256"`
		// 1KiB max
		Target string `json:"target"           validate:"max=1024"`
		PubIP  string `json:"pub_ip"           validate:"omitempty,ip"`
		PriIP  string `json:"pri_ip"           validate:"omitempty,ip"`
	}

	MachineRegistrationResponse struct {
		MachineID string `json:"machine_id" format:"uuid" validate:"required,uuid_rfc4122"`
		// Only returned once. Used as the basic auth password together with machine_id
		Token string `json:"token"                    validate:"required"`
	}

	// Sent as query parameters on the ping
	Heartbeat struct {
		PubIP string `json:"pub_ip" query:"pub_ip" validate:"omitempty,ip"`
		PriIP string `json:"pri_ip" query:"pri_ip" validate:"omitempty,ip"`
	}

	PingResponse struct {
		Status    string `json:"status"     validate:"required"`
		MachineID string `json:"machine_id" validate:"required,uuid_rfc4122" format:"uuid"`
	}
)
