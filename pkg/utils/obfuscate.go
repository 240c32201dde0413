package utils

import "encoding/base64"

// Legacy storage codec for locally persisted snapshots: XOR with a static key
// plus base64. This is obfuscation for a storage format, not encryption;
// nothing needing confidentiality may use it. The key must not change or
// previously persisted snapshots become unreadable.
const obfuscationKey = "friending_local_key_v1"

func xorBytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ obfuscationKey[i%len(obfuscationKey)]
	}
	return out
}

// EncryptText encodes a value for local persistence. Empty input stays empty.
func EncryptText(value string) string {
	if value == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString(xorBytes([]byte(value)))
}

// DecryptText reverses EncryptText. Malformed input decodes to "".
func DecryptText(value string) string {
	if value == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return ""
	}
	return string(xorBytes(decoded))
}
