package jwt

import (
	"fmt"
	"sort"
	"strings"
)

// FIPS-approved algorithms for JWT signing
// These algorithms are approved by FIPS 186-4 and FIPS 140-2/140-3
var FIPSApprovedAlgorithms = map[string]bool{
	"PS256": true, "PS384": true, "PS512": true, // RSASSA-PSS
	"RS256": true, "RS384": true, "RS512": true, // RSASSA-PKCS1-v1_5
	"ES256": true, "ES384": true, "ES512": true, // ECDSA
}

// ValidateAlgorithm checks if the algorithm is FIPS-approved
func ValidateAlgorithm(alg string) error {
	if !FIPSApprovedAlgorithms[alg] {
		return fmt.Errorf("algorithm %s is not FIPS-approved. Approved algorithms: %s",
			alg, strings.Join(GetFIPSApprovedAlgorithms(), ", "))
	}
	return nil
}

// GetFIPSApprovedAlgorithms returns the approved algorithms in sorted order,
// suitable for jwt.WithValidMethods.
func GetFIPSApprovedAlgorithms() []string {
	algorithms := make([]string, 0, len(FIPSApprovedAlgorithms))
	for alg := range FIPSApprovedAlgorithms {
		algorithms = append(algorithms, alg)
	}
	sort.Strings(algorithms)
	return algorithms
}
