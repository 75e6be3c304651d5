package validator

import (
	"encoding/base64"
)

const (
	// Default crash artifact limit, overridable by ingest.max_artifact_bytes
	MaxArtifactBytes = 1 << 24
	MaxTestcaseBytes = 1 << 24
	MaxFuzzerBytes   = 1 << 26
	MaxImageBytes    = 1 << 21
)

// ensure the data length is less than the maximum base64 length for a given length without decoding the base64
func validateBase64Len(dataLen int, length int) bool {
	return dataLen <= base64.StdEncoding.EncodedLen(length)
}

// ensures an encoded crash artifact decodes to at most maxBytes
func ValidateArtifactSize(dataLen int, maxBytes int) bool {
	return validateBase64Len(dataLen, maxBytes)
}

// ensures an encoded testcase is less than the maximum length for the allowable max testcase size
func ValidateTestcaseSize(dataLen int) bool {
	return validateBase64Len(dataLen, MaxTestcaseBytes)
}

// ensures an encoded fuzzer is less than the maximum length for the allowable max fuzzer size
func ValidateFuzzerSize(dataLen int) bool {
	return validateBase64Len(dataLen, MaxFuzzerBytes)
}

// ensures an encoded profile image is less than the maximum length for the allowable max image size
func ValidateImageSize(dataLen int) bool {
	return validateBase64Len(dataLen, MaxImageBytes)
}
