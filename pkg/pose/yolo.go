package pose

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-posecam/internal/log"
)

// cocoJoints maps the 17 COCO keypoint slots of a YOLOv8-pose head onto
// the body joint set. Neck and root are synthesized.
var cocoJoints = [17]Joint{
	JointNose, JointLeftEye, JointRightEye, JointLeftEar, JointRightEar,
	JointLeftShoulder, JointRightShoulder, JointLeftElbow, JointRightElbow,
	JointLeftWrist, JointRightWrist, JointLeftHip, JointRightHip,
	JointLeftKnee, JointRightKnee, JointLeftAnkle, JointRightAnkle,
}

// 4 box + 1 score + 17 * (x, y, visibility)
const yoloPoseAttrs = 4 + 1 + 17*3

// YOLOConfig holds YOLOv8-pose estimator configuration
type YOLOConfig struct {
	ModelPath        string  `yaml:"model_path" json:"model_path"`
	ConfidenceThresh float32 `yaml:"confidence" json:"confidence"`
	NMSThresh        float32 `yaml:"nms" json:"nms"`
	// Keypoints scoring below this are reported with confidence 0.
	KeypointThresh float32 `yaml:"keypoint_confidence" json:"keypoint_confidence"`
	InputWidth     int     `yaml:"input_width" json:"input_width"`
	InputHeight    int     `yaml:"input_height" json:"input_height"`
}

// DefaultYOLOConfig returns defaults for yolov8n-pose exported at 640.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n-pose.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		KeypointThresh:   0.3,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// YOLOPose estimates poses with a YOLOv8-pose ONNX model on OpenCV DNN.
type YOLOPose struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
	closed    bool
	logger    *zap.Logger
}

// NewYOLOPose loads the model at cfg.ModelPath.
func NewYOLOPose(cfg YOLOConfig) (*YOLOPose, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, WrapError("yolo", fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath))
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, WrapError("yolo", fmt.Errorf("failed to load model from %s", cfg.ModelPath))
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLOPose{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		logger:    log.Named("pose.yolo"),
	}, nil
}

// Estimate runs one forward pass over img.
func (y *YOLOPose) Estimate(ctx context.Context, img image.Image) ([]Observation, error) {
	if emptyImage(img) {
		return nil, WrapError("yolo", ErrEmptyImage)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	y.mu.Lock()
	defer y.mu.Unlock()
	if y.closed {
		return nil, WrapError("yolo", ErrClosed)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, WrapError("yolo", fmt.Errorf("convert image: %w", err))
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, y.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	y.net.SetInput(blob, "")
	output := y.net.Forward("")
	defer output.Close()

	// Output shape: [1, 56, N]
	sizes := output.Size()
	if len(sizes) != 3 || sizes[1] != yoloPoseAttrs {
		return nil, WrapError("yolo", fmt.Errorf("unexpected output shape %v", sizes))
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, WrapError("yolo", fmt.Errorf("read output: %w", err))
	}

	obs := parsePoseOutput(data, sizes[2], y.config)
	if len(obs) > 0 {
		y.logger.Debug("poses found", zap.Int("count", len(obs)))
	}
	return obs, nil
}

// parsePoseOutput decodes a channel-major [56, n] YOLOv8-pose tensor.
// Coordinates are in model input pixels; the input was stretched, not
// letterboxed, so dividing by the input size normalizes them.
func parsePoseOutput(data []float32, n int, cfg YOLOConfig) []Observation {
	if len(data) < yoloPoseAttrs*n {
		return nil
	}
	at := func(attr, i int) float32 { return data[attr*n+i] }

	var boxes []image.Rectangle
	var scores []float32
	var candidates []int

	for i := 0; i < n; i++ {
		score := at(4, i)
		if score < cfg.ConfidenceThresh {
			continue
		}
		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		boxes = append(boxes, image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)))
		scores = append(scores, score)
		candidates = append(candidates, i)
	}

	if len(boxes) == 0 {
		return nil
	}

	keep := gocv.NMSBoxes(boxes, scores, cfg.ConfidenceThresh, cfg.NMSThresh)

	inW, inH := float64(cfg.InputWidth), float64(cfg.InputHeight)
	out := make([]Observation, 0, len(keep))
	for _, k := range keep {
		i := candidates[k]
		kps := make(map[Joint]Keypoint, len(Joints))
		for slot, joint := range cocoJoints {
			base := 5 + slot*3
			conf := at(base+2, i)
			if conf < cfg.KeypointThresh {
				conf = 0
			}
			kps[joint] = Keypoint{
				Joint:      joint,
				Location:   Point{X: float64(at(base, i)) / inW, Y: float64(at(base+1, i)) / inH},
				Confidence: float64(conf),
			}
		}
		kps[JointNeck] = midpoint(JointNeck, kps[JointLeftShoulder], kps[JointRightShoulder])
		kps[JointRoot] = midpoint(JointRoot, kps[JointLeftHip], kps[JointRightHip])

		out = append(out, Observation{Confidence: float64(scores[k]), Keypoints: kps})
	}
	return out
}

// Close releases the network.
func (y *YOLOPose) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.closed {
		return nil
	}
	y.closed = true
	return y.net.Close()
}
