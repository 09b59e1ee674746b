package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cloudx-io/openclearing/enclaveapi"
	"github.com/cloudx-io/openclearing/validation"
)

func main() {
	// Define CLI flags
	var (
		resultInput  = flag.String("result", "", "Result response JSON (file path or inline JSON)")
		bidDigest    = flag.String("bid-digest", "", "Bid digest received at submission time")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	// Show help
	if *help {
		showUsage()
		os.Exit(0)
	}

	if *resultInput == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --result is required\n")
		os.Exit(1)
	}

	resultJSON, err := readJSONInput(*resultInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading result response: %v\n", err)
		os.Exit(2)
	}

	validationInput, err := extractValidationInput(resultJSON, *bidDigest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error extracting validation data: %v\n", err)
		os.Exit(2)
	}

	// Validate using library
	result, err := validation.ValidateResultAttestation(validationInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	// Output results
	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(result)
	}

	// Exit with appropriate code
	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	fmt.Println("Enclave Result Attestation Validator")
	fmt.Println()
	fmt.Println("Validates an attested auction result against the disclosed outcome")
	fmt.Println("and the bid digest received at submission time.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  result-validator --result <json> [--bid-digest <hex>] [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --result <json>                   Result response (file path or inline JSON)")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --bid-digest <hex>                Bid digest from the submit_bid response")
	fmt.Println("  --format <text|json>              Output format (default: text)")
	fmt.Println("  --help                            Show this help message")
	fmt.Println()
	fmt.Println("Result Response (from the result_request call):")
	fmt.Println("  {")
	fmt.Println("    \"auction_id\": \"4e8d...\",")
	fmt.Println("    \"clearing_price\": 1000,")
	fmt.Println("    \"won_by_rank\": [2, 1, 0],")
	fmt.Println("    \"result_digest\": \"9f3a...\",")
	fmt.Println("    \"digest_nonce\": \"77b1...\",")
	fmt.Println("    \"attestation_cose_base64\": \"hEShAT...\"")
	fmt.Println("  }")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readJSONInput(input string) ([]byte, error) {
	// Try reading as file first
	if data, err := os.ReadFile(input); err == nil {
		return data, nil
	}
	// Treat as inline JSON
	return []byte(input), nil
}

func extractValidationInput(resultJSON []byte, bidDigest string) (*validation.ResultValidationInput, error) {
	var resultResponse enclaveapi.ResultResponse
	if err := json.Unmarshal(resultJSON, &resultResponse); err != nil {
		return nil, fmt.Errorf("parse result response: %w", err)
	}

	if resultResponse.AuctionID == "" {
		return nil, fmt.Errorf("missing auction_id in result response")
	}
	if resultResponse.AttestationCOSEBase64 == "" {
		return nil, fmt.Errorf("missing attestation_cose_base64 in result response")
	}

	return &validation.ResultValidationInput{
		AttestationCOSEBase64: resultResponse.AttestationCOSEBase64,
		AuctionID:             resultResponse.AuctionID,
		ClearingPrice:         resultResponse.ClearingPrice,
		WonByRank:             resultResponse.WonByRank,
		BidDigest:             bidDigest,
	}, nil
}

func outputText(result *validation.ResultValidationResult) {
	fmt.Println("Enclave Result Attestation Validator")
	fmt.Println("====================================")
	fmt.Println()

	fmt.Println("Validation Results:")
	fmt.Println("-------------------")

	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  PCRs Valid:              %v\n", result.PCRsValid)
	fmt.Printf("  Certificate Valid:       %v\n", result.CertificateValid)
	fmt.Printf("  Signature Valid:         %v\n", result.SignatureValid)
	fmt.Printf("  Result Digest Valid:     %v\n", result.ResultDigestValid)
	fmt.Printf("  Bid Included:            %v\n", result.BidIncluded)
	fmt.Printf("  Clearing Price Valid:    %v\n", result.ClearingPriceValid)
	fmt.Printf("  Supply Conserved:        %v\n", result.SupplyConserved)

	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	fmt.Println()
	fmt.Println("====================================")
	if result.IsValid() {
		fmt.Println("VALIDATION: ✓ PASSED")
		fmt.Println("Exit Code: 0")
	} else {
		fmt.Println("VALIDATION: ✗ FAILED")
		fmt.Println("Exit Code: 1")
	}
}

func outputJSON(result *validation.ResultValidationResult) {
	output := map[string]any{
		"valid":                result.IsValid(),
		"pcrs_valid":           result.PCRsValid,
		"certificate_valid":    result.CertificateValid,
		"signature_valid":      result.SignatureValid,
		"result_digest_valid":  result.ResultDigestValid,
		"bid_included":         result.BidIncluded,
		"clearing_price_valid": result.ClearingPriceValid,
		"supply_conserved":     result.SupplyConserved,
		"details":              result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(data))
}
