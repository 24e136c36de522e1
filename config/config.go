package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	HOST             = "0.0.0.0"
	PORT             = 8000
	DET_SIZE         = 640   // Detection input resolution (DET_SIZE x DET_SIZE)
	USE_GPU          = false // CUDA execution for the backends that support it
	GPU_DEVICE_ID    = 0
	FACE_BACKEND     = "onnx" // onnx, dlib (built with -tags dlib) or yunet (built with -tags opencv)
	MODELS_DIR       = "./models"
	MODEL_NAME       = "buffalo_l" // Sub-directory of MODELS_DIR holding the ONNX model pack
	DET_MODEL        = ""          // Backend default when empty (det_10g.onnx, face_detection_yunet_2023mar.onnx)
	REC_MODEL        = ""          // Backend default when empty (w600k_r50.onnx, face_recognition_sface_2021dec.onnx)
	DET_THRESHOLD    = 0.5
	NMS_THRESHOLD    = 0.4
	ORT_LIBRARY_PATH = ""    // onnxruntime shared library, system default if empty
	FACE_DETECT_CNN  = false // dlib only: use the CNN (mmod) detector instead of HOG. Much slower
	MAX_UPLOAD_MB    = 32
	READ_TIMEOUT     = 30 * time.Second
	WRITE_TIMEOUT    = 120 * time.Second
	SHUTDOWN_TIMEOUT = 10 * time.Second
	TLS_DOMAINS      = "" // e.g. "faces.example.com,faces2.example.com"
	DEBUG_MODE       = false
	LOG_LEVEL        = "info"
	LOG_FILE         = "" // Rotated by lumberjack when set
)

func init() {
	Load()
}

// Load reads a .env file (if any) and then the process environment on top of the defaults.
func Load() {
	_ = godotenv.Load()

	readEnvString("HOST", &HOST)
	readEnvInt("PORT", &PORT)
	readEnvInt("DET_SIZE", &DET_SIZE)
	readEnvBool("USE_GPU", &USE_GPU)
	readEnvInt("GPU_DEVICE_ID", &GPU_DEVICE_ID)
	readEnvString("FACE_BACKEND", &FACE_BACKEND)
	readEnvString("MODELS_DIR", &MODELS_DIR)
	readEnvString("MODEL_NAME", &MODEL_NAME)
	readEnvString("DET_MODEL", &DET_MODEL)
	readEnvString("REC_MODEL", &REC_MODEL)
	readEnvFloat("DET_THRESHOLD", &DET_THRESHOLD)
	readEnvFloat("NMS_THRESHOLD", &NMS_THRESHOLD)
	readEnvString("ORT_LIBRARY_PATH", &ORT_LIBRARY_PATH)
	readEnvBool("FACE_DETECT_CNN", &FACE_DETECT_CNN)
	readEnvInt("MAX_UPLOAD_MB", &MAX_UPLOAD_MB)
	readEnvDuration("READ_TIMEOUT", &READ_TIMEOUT)
	readEnvDuration("WRITE_TIMEOUT", &WRITE_TIMEOUT)
	readEnvDuration("SHUTDOWN_TIMEOUT", &SHUTDOWN_TIMEOUT)
	readEnvString("TLS_DOMAINS", &TLS_DOMAINS)
	readEnvBool("DEBUG_MODE", &DEBUG_MODE)
	readEnvString("LOG_LEVEL", &LOG_LEVEL)
	readEnvString("LOG_FILE", &LOG_FILE)
}

// BindAddress joins HOST and PORT
func BindAddress() string {
	return net.JoinHostPort(HOST, strconv.Itoa(PORT))
}

func readEnvString(name string, value *string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	*value = v
}

func readEnvBool(name string, value *bool) {
	v := strings.ToLower(os.Getenv(name))
	if v == "true" || v == "1" || v == "yes" || v == "on" {
		*value = true
	} else if v == "false" || v == "0" || v == "no" || v == "off" {
		*value = false
	}
}

func readEnvFloat(name string, value *float64) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return
	}
	*value = f
}

func readEnvInt(name string, value *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*value = i
}

// readEnvDuration accepts Go durations ("90s") or a plain number of seconds
func readEnvDuration(name string, value *time.Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*value = d
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*value = time.Duration(secs) * time.Second
	}
}
