package model

type (
	// PublicKeyRecord is what the directory returns for a username.
	PublicKeyRecord struct {
		Username     string `json:"username" bson:"username"`
		PublicKeyPEM string `json:"public_key_pem" bson:"public_key_pem"`
		Fingerprint  string `json:"fingerprint" bson:"fingerprint"`
	}

	RegisterKeyRequest struct {
		Username     string `json:"username"`
		PublicKeyPEM string `json:"public_key_pem"`
	}

	RegisterKeyResponse struct {
		OK          bool   `json:"ok"`
		Fingerprint string `json:"fingerprint"`
	}

	ErrorResponse struct {
		Detail string `json:"detail"`
	}
)
