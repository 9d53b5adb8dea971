package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	hconsts "github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hildam/deep-dive-go/entity/conf"
	"github.com/hildam/deep-dive-go/entity/model"
)

// maxRecordSize 单条检索记录的上限
const maxRecordSize = 4 << 20

// InternalClient 内部知识检索服务客户端，响应为逐行 JSON 的记录流
type InternalClient struct {
	cli      *client.Client
	endpoint string
	timeout  time.Duration
}

// NewInternalClient 创建检索客户端
func NewInternalClient(cfg conf.InternalSearchConfig) (*InternalClient, error) {
	cli, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithResponseBodyStream(true),
	)
	if err != nil {
		return nil, fmt.Errorf("NewInternalClient failed, create client err: %w", err)
	}
	return &InternalClient{
		cli:      cli,
		endpoint: cfg.Endpoint,
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil
}

type internalRequest struct {
	Queries   []string `json:"queries"`
	UserID    string   `json:"user_id"`
	ProjectID string   `json:"project_id"`
}

// Search 实现 InternalSearcher
func (c *InternalClient) Search(ctx context.Context, queries []string, scope model.Scope, visit func(model.SearchRecord) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(internalRequest{Queries: queries, UserID: scope.UserID, ProjectID: scope.ProjectID})
	if err != nil {
		return err
	}

	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()
	req.SetMethod(hconsts.MethodPost)
	req.SetRequestURI(c.endpoint)
	req.Header.SetContentTypeBytes([]byte(hconsts.MIMEApplicationJSON))
	req.SetBody(body)

	if err := c.cli.Do(ctx, req, resp); err != nil {
		return fmt.Errorf("internal search request: %w", err)
	}
	defer func() { _ = resp.CloseBodyStream() }()

	if code := resp.StatusCode(); code != hconsts.StatusOK {
		return fmt.Errorf("internal search status %d", code)
	}
	stream := resp.BodyStream()
	if stream == nil {
		stream = bytes.NewReader(resp.Body())
	}
	return decodeRecords(stream, visit)
}

// decodeRecords 逐行解析记录，空行忽略
func decodeRecords(r io.Reader, visit func(model.SearchRecord) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec model.SearchRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("decode search record: %w", err)
		}
		if err := visit(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}
