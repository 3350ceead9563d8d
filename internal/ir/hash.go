package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix allows the encoding to
// change without colliding with older build caches.
const (
	DomainSignature = "refc/signature/v1"
	DomainModule    = "refc/module/v1"
	DomainSource    = "refc/source/v1"
	DomainFunction  = "refc/function/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes the canonical encoding of v under domain.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// SourceFingerprint hashes raw module source bytes together with the
// compiler options that affect output.
func SourceFingerprint(src []byte, options string) string {
	data := make([]byte, 0, len(src)+len(options)+1)
	data = append(data, options...)
	data = append(data, 0)
	data = append(data, src...)
	return hashWithDomain(DomainSource, data)
}

// SignatureFingerprint identifies a native calling convention: callers bound
// against one signature must not be linked to another.
func SignatureFingerprint(sig Signature) string {
	fp, err := Fingerprint(DomainSignature, sig.canonical())
	if err != nil {
		panic(fmt.Sprintf("ir: signature fingerprint: %v", err))
	}
	return fp
}

// ModuleFingerprint identifies the exported interface of a module.
func ModuleFingerprint(module string, sigs []Signature) string {
	exports := make([]any, len(sigs))
	for i, s := range sigs {
		exports[i] = s.canonical()
	}
	fp, err := Fingerprint(DomainModule, map[string]any{
		"module":  module,
		"exports": exports,
	})
	if err != nil {
		panic(fmt.Sprintf("ir: module fingerprint: %v", err))
	}
	return fp
}

// FunctionFingerprint identifies the body of fn: two functions with the same
// fingerprint lower to the same code. It keys build cache artifacts.
func FunctionFingerprint(fn *Function) string {
	fp, err := Fingerprint(DomainFunction, map[string]any{
		"sig":         fn.Sig.canonical(),
		"ir":          Format(fn),
		"ref_counted": fn.RefCounted,
	})
	if err != nil {
		panic(fmt.Sprintf("ir: function fingerprint: %v", err))
	}
	return fp
}
