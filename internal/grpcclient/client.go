package grpcclient

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/smartbin/internal/camera"
	"github.com/example/smartbin/internal/classifier"
	"github.com/example/smartbin/internal/logging"
)

// ClassifyMethod is the unary RPC served by the remote classifier. It takes the
// raw JPEG as a BytesValue and answers with the label as a StringValue.
const ClassifyMethod = "/smartbin.v1.Classifier/Classify"

// DialClassifier returns a gRPC-backed classifier. The connection is
// established lazily so a bin that boots offline still starts.
func DialClassifier(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*Classifier, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &Classifier{conn: conn, logger: logger.Named("grpc_classifier")}, conn, nil
}

// Classifier calls the remote classifier over gRPC.
type Classifier struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// Classify sends the photo bytes and parses the returned label.
func (c *Classifier) Classify(ctx context.Context, photo camera.Photo) (classifier.Label, error) {
	data, err := os.ReadFile(photo.Path)
	if err != nil {
		return classifier.Unknown, fmt.Errorf("%w: %v", classifier.ErrInvalidImage, err)
	}

	resp := &wrapperspb.StringValue{}
	if err := c.conn.Invoke(ctx, ClassifyMethod, wrapperspb.Bytes(data), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.classify", "", err)
		c.logger.Warn("classifier call failed", zap.Error(wrapped), zap.String("photo", photo.Name()))
		return classifier.Unknown, fmt.Errorf("%w: %v", classifier.ErrClassify, wrapped)
	}

	return classifier.ParseLabel(resp.GetValue()), nil
}
