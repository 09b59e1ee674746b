package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/openclearing/enclaveapi"
)

// EnclaveServer accepts auction requests over vsock and dispatches them to
// the auction host.
type EnclaveServer struct {
	port         uint32
	host         *AuctionHost
	keyManager   *KeyManager
	tokenManager *TokenManager
}

func NewEnclaveServer(port uint32) *EnclaveServer {
	return &EnclaveServer{port: port, host: NewAuctionHost()}
}

// getEnclaveAttester attempts to get the NSM attester, returns error if not available
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

func (s *EnclaveServer) Start() error {
	keyManager, err := NewKeyManager()
	if err != nil {
		return fmt.Errorf("failed to initialize key manager: %w", err)
	}
	s.keyManager = keyManager
	log.Printf("KeyManager initialized")

	s.tokenManager = NewTokenManager()
	s.tokenManager.StartExpirationCleanup(context.Background(), 10*time.Second, 10*time.Minute)
	log.Printf("TokenManager initialized (cleanup interval: 10s, max age: 10m)")

	listener, err := vsock.Listen(s.port, nil)
	if err != nil {
		return fmt.Errorf("failed to create vsock listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	log.Printf("INFO: Auction engine listening on vsock port %d", s.port)

	maxWorkers, err := getRequiredEnvInt("ENCLAVE_MAX_WORKERS")
	if err != nil {
		return fmt.Errorf("failed to get max workers config: %w", err)
	}
	semaphore := make(chan struct{}, maxWorkers)

	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("ERROR: Failed to accept vsock connection: %v", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }() // Release worker slot
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *EnclaveServer) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		log.Printf("ERROR: Failed to read request: %v", err)
		return
	}

	response := s.dispatch(buf.Bytes())

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

// decodeAs decodes the raw request into req and runs handle, reporting decode
// failures in the wire error format.
func decodeAs[T any](raw []byte, handle func(T) any) any {
	var req T
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("ERROR: Failed to decode request: %v", err)
		return errorResponse("failed to decode request: %v", err)
	}
	return handle(req)
}

func (s *EnclaveServer) dispatch(raw []byte) any {
	var baseReq struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &baseReq); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return errorResponse("failed to decode request: %v", err)
	}

	log.Printf("INFO: Received request type: %s", baseReq.Type)

	switch baseReq.Type {
	case "ping":
		return map[string]any{
			"type":      "pong",
			"message":   "Auction engine is healthy",
			"timestamp": time.Now().Unix(),
		}

	case "key_request":
		attester, err := getEnclaveAttester()
		if err != nil {
			log.Printf("ERROR: Key request failed: %v", err)
			return errorResponse("failed to initialize attester: %v", err)
		}
		keyResp, err := HandleKeyRequest(attester, s.keyManager, s.tokenManager)
		if err != nil {
			log.Printf("ERROR: Key request failed: %v", err)
			return errorResponse("key request failed: %v", err)
		}
		return keyResp

	case "create_auction":
		return decodeAs(raw, s.host.HandleCreateAuction)

	case "submit_bid":
		return decodeAs(raw, func(req enclaveapi.SubmitBidRequest) any {
			return s.host.HandleSubmitBid(req, s.keyManager, s.tokenManager)
		})

	case "remove_bid":
		return decodeAs(raw, s.host.HandleRemoveBid)

	case "deposit":
		return decodeAs(raw, s.host.HandleDeposit)

	case "close_auction":
		return decodeAs(raw, s.host.HandleCloseAuction)

	case "advance":
		return decodeAs(raw, s.host.HandleAdvance)

	case "status":
		return decodeAs(raw, s.host.HandleStatus)

	case "result_request":
		return decodeAs(raw, func(req enclaveapi.ResultRequest) any {
			attester, err := getEnclaveAttester()
			if err != nil {
				log.Printf("ERROR: Result request failed: %v", err)
				return errorResponse("failed to initialize attester: %v", err)
			}
			return s.host.HandleResult(req, attester)
		})

	case "claim":
		return decodeAs(raw, s.host.HandleClaim)

	default:
		return errorResponse("unknown request type: %s", baseReq.Type)
	}
}

// Helper function for required environment variable parsing
func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}

func main() {
	server := NewEnclaveServer(5000)
	log.Fatal(server.Start())
}
