// Пакет edms — SOAP-клиент DM Server (EDMS) и менеджер сессии.
// Endpoint IDMSvc обслуживает вход и поиск документа,
// endpoint IDMObj — потоки содержимого и освобождение объектов.
package edms

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики вызовов EDMS.
var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ec_edms_calls_total",
		Help: "Общее количество SOAP-вызовов EDMS (по операции и результату).",
	}, []string{"operation", "result"})

	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ec_edms_call_duration_seconds",
		Help:    "Длительность SOAP-вызовов EDMS.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"operation"})
)

// DefaultMaxResponseBytes — предел размера SOAP-ответа по умолчанию.
// Фрагмент потока 16 МиБ в base64 вместе с конвертом занимает около 22 МиБ.
const DefaultMaxResponseBytes = 64 << 20

// Options — параметры подключения к EDMS.
type Options struct {
	// SvcURL — endpoint IDMSvc (LoginSvr5, GetDocSvr3)
	SvcURL string
	// ObjURL — endpoint IDMObj (GetReadStream, ReadStream, ReleaseObject).
	// Пустое значение — используется SvcURL.
	ObjURL string
	// CACertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул)
	CACertPath string
	// Timeout — таймаут одного вызова, ограничивает и чтение фрагмента потока
	Timeout time.Duration
	// MaxResponseBytes — предел размера ответа (0 — DefaultMaxResponseBytes)
	MaxResponseBytes int64
}

// Credentials — учётные данные сервисного входа в EDMS.
type Credentials struct {
	Network      int
	LoginContext string
	Username     string
	Password     string //nolint:gosec // G101: поле структуры
}

// LoginReply — результат LoginSvr5.
type LoginReply struct {
	ResultCode int
	// Token — DST (session token), пустой при отказе
	Token string
}

// DocumentReply — результат GetDocSvr3.
type DocumentReply struct {
	ResultCode int
	// ContentID — дескриптор содержимого, требует ReleaseObject
	ContentID string
}

// StreamReply — результат GetReadStream.
type StreamReply struct {
	ResultCode int
	// StreamID — дескриптор потока, требует ReleaseObject
	StreamID string
}

// ChunkReply — результат ReadStream.
type ChunkReply struct {
	ResultCode int
	Data       []byte
}

// Client — SOAP-клиент DM Server.
type Client struct {
	httpClient  *http.Client
	svcURL      string
	objURL      string
	maxResponse int64
	logger      *slog.Logger
}

// New создаёт клиент EDMS.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	if opts.CACertPath != "" {
		tlsConfig, err := buildTLSConfig(opts.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата EDMS: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат EDMS добавлен в пул доверия",
			slog.String("ca_cert", opts.CACertPath),
		)
	}

	objURL := opts.ObjURL
	if objURL == "" {
		objURL = opts.SvcURL
	}
	maxResponse := opts.MaxResponseBytes
	if maxResponse <= 0 {
		maxResponse = DefaultMaxResponseBytes
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		svcURL:      strings.TrimRight(opts.SvcURL, "/"),
		objURL:      strings.TrimRight(objURL, "/"),
		maxResponse: maxResponse,
		logger:      logger.With(slog.String("component", "edms_client")),
	}, nil
}

// Login выполняет LoginSvr5 с одной записью loginInfo.
// Решение о принятии токена принимает SessionManager.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginReply, error) {
	req := loginRequest{Call: loginCall{
		LoginInfo: loginInfoArray{Items: []loginInfo{{
			Network:      creds.Network,
			LoginContext: creds.LoginContext,
			Username:     creds.Username,
			Password:     creds.Password,
		}}},
		Authen: 1,
	}}

	var resp loginResponse
	if err := c.call(ctx, "login", c.svcURL, actionLogin, req, &resp); err != nil {
		return nil, err
	}
	return &LoginReply{ResultCode: resp.Result.ResultCode, Token: resp.Result.DSTOut}, nil
}

// GetDocument ищет документ по библиотеке и номеру (GetDocSvr3).
func (c *Client) GetDocument(ctx context.Context, dst, library string, docNumber int64) (*DocumentReply, error) {
	req := getDocRequest{Call: getDocCall{
		DSTIn: dst,
		Criteria: docCriteria{
			Count:  2,
			Names:  stringArray{Items: []string{"%TARGET_LIBRARY", "%DOCUMENT_NUMBER"}},
			Values: stringArray{Items: []string{library, strconv.FormatInt(docNumber, 10)}},
		},
	}}

	var resp getDocResponse
	if err := c.call(ctx, "get_document", c.svcURL, actionGetDocument, req, &resp); err != nil {
		return nil, err
	}
	return &DocumentReply{ResultCode: resp.Result.ResultCode, ContentID: resp.Result.GetDocID}, nil
}

// GetReadStream открывает поток чтения содержимого.
func (c *Client) GetReadStream(ctx context.Context, dst, contentID string) (*StreamReply, error) {
	req := getReadStreamRequest{Call: getReadStreamCall{DSTIn: dst, ContentID: contentID}}

	var resp getReadStreamResponse
	if err := c.call(ctx, "get_read_stream", c.objURL, actionGetReadStream, req, &resp); err != nil {
		return nil, err
	}
	return &StreamReply{ResultCode: resp.Result.ResultCode, StreamID: resp.Result.StreamID}, nil
}

// ReadStream запрашивает очередной фрагмент потока размером до n байт.
func (c *Client) ReadStream(ctx context.Context, streamID string, n int) (*ChunkReply, error) {
	req := readStreamRequest{Call: readStreamCall{StreamID: streamID, RequestedBytes: n}}

	var resp readStreamResponse
	if err := c.call(ctx, "read_stream", c.objURL, actionReadStream, req, &resp); err != nil {
		return nil, err
	}
	data, err := resp.chunk()
	if err != nil {
		return nil, err
	}
	return &ChunkReply{ResultCode: resp.Result.ResultCode, Data: data}, nil
}

// ReleaseObject освобождает серверный объект (поток или содержимое).
func (c *Client) ReleaseObject(ctx context.Context, objectID string) error {
	req := releaseRequest{Call: releaseCall{ObjectID: objectID}}

	var resp releaseResponse
	if err := c.call(ctx, "release", c.objURL, actionRelease, req, &resp); err != nil {
		return err
	}
	if resp.Result.ResultCode != ResultSuccess {
		return fmt.Errorf("ReleaseObject %s: код результата %d", objectID, resp.Result.ResultCode)
	}
	return nil
}

// call выполняет один SOAP-вызов и декодирует ответ в out.
// SOAP 1.1 возвращает Fault со статусом 500, поэтому тело разбирается
// при любом статусе, а статус проверяется, если Fault не найден.
func (c *Client) call(ctx context.Context, operation, endpoint, action string, in, out any) error {
	start := time.Now()
	result := "ok"
	defer func() {
		callsTotal.WithLabelValues(operation, result).Inc()
		callDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	payload, err := encodeEnvelope(in)
	if err != nil {
		result = "encode_error"
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		result = "transport_error"
		return fmt.Errorf("%w: создание запроса %s: %v", ErrTransport, operation, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+action+`"`)

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		result = "transport_error"
		return fmt.Errorf("%w: запрос %s к %s: %v", ErrTransport, operation, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponse+1))
	if err != nil {
		result = "transport_error"
		return fmt.Errorf("%w: чтение ответа %s: %v", ErrTransport, operation, err)
	}
	if int64(len(body)) > c.maxResponse {
		result = "transport_error"
		return fmt.Errorf("%w: ответ %s превышает %d байт", ErrTransport, operation, c.maxResponse)
	}

	if err := decodeEnvelope(bytes.NewReader(body), out); err != nil {
		switch {
		case errors.Is(err, ErrFault):
			result = "fault"
		case resp.StatusCode != http.StatusOK:
			result = "transport_error"
			return fmt.Errorf("%w: EDMS вернул статус %d для %s", ErrTransport, resp.StatusCode, operation)
		default:
			result = "bad_response"
		}
		c.logger.Debug("Ошибка вызова EDMS",
			slog.String("operation", operation),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w", operation, err)
	}

	return nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}
