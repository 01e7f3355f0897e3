package profilegrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/louisbranch/authserver/internal/profile"
)

const createProfileMethod = "/profile.v1.ProfileService/CreateProfile"

type createProfileRequest struct {
	AccountID   string `json:"account_id"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Gender      string `json:"gender,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type createProfileResponse struct {
	ProfileID string `json:"profile_id"`
}

// Client implements profile.Client over a gRPC connection.
type Client struct {
	conn *grpc.ClientConn
}

// New wraps an established connection. The caller owns the connection
// lifecycle.
func New(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// CreateProfile forwards the payload to the remote service. Rejections are
// returned as *profile.RemoteError; transport failures keep their gRPC
// status so callers can tell the two apart.
func (c *Client) CreateProfile(ctx context.Context, p profile.Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}

	req := createProfileRequest{
		AccountID:   p.AccountID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Gender:      string(p.Gender),
		PhoneNumber: p.PhoneNumber,
	}
	if !p.DateOfBirth.IsZero() {
		req.DateOfBirth = p.DateOfBirth.Format("2006-01-02")
	}

	var resp createProfileResponse
	err := c.conn.Invoke(ctx, createProfileMethod, &req, &resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return mapRemoteError(err)
	}
	return nil
}

func mapRemoteError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("create profile rpc: %w", err)
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.AlreadyExists, codes.FailedPrecondition:
		return &profile.RemoteError{Detail: st.Message()}
	}
	return fmt.Errorf("create profile rpc: %w", err)
}
