package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/iabetor/morningbrief/internal/rss"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tmt "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tmt/v20180321"
)

// leadRunes TMT 模式下 AISummary 的最大长度。
const leadRunes = 120

// Translator 批量翻译文本，返回结果与输入一一对应。
type Translator interface {
	TranslateBatch(ctx context.Context, texts []string, target string) ([]string, error)
}

// TencentTranslator 腾讯云机器翻译。
type TencentTranslator struct {
	client *tmt.Client
}

// NewTencentTranslator 创建腾讯云机器翻译客户端。
func NewTencentTranslator(secretID, secretKey, region string) (*TencentTranslator, error) {
	credential := common.NewCredential(secretID, secretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tmt.tencentcloudapi.com"

	client, err := tmt.NewClient(credential, region, cpf)
	if err != nil {
		return nil, fmt.Errorf("创建翻译客户端失败: %w", err)
	}

	logger.Infof("[narrative] 腾讯云机器翻译已初始化 (region=%s)", region)
	return &TencentTranslator{client: client}, nil
}

// TranslateBatch 调用 TextTranslateBatch，源语言自动检测。
func (t *TencentTranslator) TranslateBatch(ctx context.Context, texts []string, target string) ([]string, error) {
	request := tmt.NewTextTranslateBatchRequest()
	request.Source = common.StringPtr("auto")
	request.Target = common.StringPtr(target)
	request.ProjectId = common.Int64Ptr(0)
	request.SourceTextList = common.StringPtrs(texts)

	response, err := t.client.TextTranslateBatchWithContext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("翻译请求失败: %w", err)
	}
	if response.Response == nil || len(response.Response.TargetTextList) != len(texts) {
		return nil, errors.New("翻译响应为空或条数不符")
	}

	out := make([]string, len(texts))
	for i, p := range response.Response.TargetTextList {
		if p != nil {
			out[i] = *p
		}
	}
	return out, nil
}

// TranslatorGenerator 不依赖大模型：标题和摘要走机器翻译，解读取译文的开头几句。
type TranslatorGenerator struct {
	translator Translator
	target     string
}

// NewTranslatorGenerator 创建机器翻译加工后端，target 为目标语言代码（如 zh）。
func NewTranslatorGenerator(translator Translator, target string) *TranslatorGenerator {
	if target == "" {
		target = "zh"
	}
	return &TranslatorGenerator{translator: translator, target: target}
}

// Generate 翻译标题和摘要。
func (g *TranslatorGenerator) Generate(ctx context.Context, item rss.FeedItem) (Article, error) {
	texts := []string{item.Title}
	if strings.TrimSpace(item.Summary) != "" {
		texts = append(texts, item.Summary)
	}

	translated, err := g.translator.TranslateBatch(ctx, texts, g.target)
	if err != nil {
		return Article{}, &GenerationError{Stage: StageRequest, Err: err}
	}
	if len(translated) != len(texts) || strings.TrimSpace(translated[0]) == "" {
		return Article{}, &GenerationError{Stage: StageParse, Err: errors.New("翻译结果不完整")}
	}

	full := translated[0]
	if len(translated) > 1 && strings.TrimSpace(translated[1]) != "" {
		full = translated[1]
	}

	return Article{
		TranslatedTitle: translated[0],
		FullTranslation: full,
		AISummary:       leadSentences(full, leadRunes),
	}, nil
}

// leadSentences 取不超过 limit 个字符的完整句子；第一句就超长时截断。
func leadSentences(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}

	cut := -1
	for i := 0; i < limit; i++ {
		switch runes[i] {
		case '。', '！', '？', '!', '?', '.':
			cut = i
		}
	}
	if cut < 0 {
		return string(runes[:limit]) + "…"
	}
	return string(runes[:cut+1])
}
