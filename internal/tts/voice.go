package tts

import (
	"strconv"
	"strings"

	"github.com/mozillazg/go-pinyin"
)

// DefaultVoiceLabel 未知或缺省声音时使用的标签。
const DefaultVoiceLabel = "知性女声"

// VoiceProfile 一个可选的播报声音及其在各引擎中的标识。
type VoiceProfile struct {
	Label            string `json:"label"`
	Slug             string `json:"slug"`
	EdgeVoice        string `json:"edge_voice"`
	TencentVoiceType int64  `json:"tencent_voice_type"`
}

// ID 返回该声音在指定引擎中的标识。
func (v VoiceProfile) ID(engine string) string {
	if engine == EngineTencent {
		return strconv.FormatInt(v.TencentVoiceType, 10)
	}
	return v.EdgeVoice
}

// DefaultVoices 内置声音表，顺序即页面下拉框顺序。
var DefaultVoices = []VoiceProfile{
	{Label: "知性女声", EdgeVoice: "zh-CN-XiaoxiaoNeural", TencentVoiceType: 1001},
	{Label: "沉稳男声", EdgeVoice: "zh-CN-YunxiNeural", TencentVoiceType: 1018},
	{Label: "新闻播音", EdgeVoice: "zh-CN-YunjianNeural", TencentVoiceType: 101013},
}

// Voices 声音查找表，支持按标签或拼音 slug 查找。
type Voices struct {
	list    []VoiceProfile
	byLabel map[string]int
	bySlug  map[string]int
	def     int
}

// NewVoices 在内置声音表上应用覆盖项并确定默认声音。
// 覆盖项按标签匹配：已存在的只替换非空字段，不存在的追加。
func NewVoices(overrides []VoiceProfile, defaultLabel string) *Voices {
	v := &Voices{
		byLabel: make(map[string]int),
		bySlug:  make(map[string]int),
	}
	for _, p := range DefaultVoices {
		v.add(p)
	}
	for _, o := range overrides {
		o.Label = strings.TrimSpace(o.Label)
		if o.Label == "" {
			continue
		}
		i, ok := v.byLabel[o.Label]
		if !ok {
			v.add(o)
			continue
		}
		if o.EdgeVoice != "" {
			v.list[i].EdgeVoice = o.EdgeVoice
		}
		if o.TencentVoiceType != 0 {
			v.list[i].TencentVoiceType = o.TencentVoiceType
		}
	}

	v.def = v.byLabel[DefaultVoiceLabel]
	if i, ok := v.byLabel[defaultLabel]; ok {
		v.def = i
	}
	return v
}

func (v *Voices) add(p VoiceProfile) {
	if p.Slug == "" {
		p.Slug = Slug(p.Label)
	}
	v.list = append(v.list, p)
	i := len(v.list) - 1
	v.byLabel[p.Label] = i
	if p.Slug != "" {
		v.bySlug[p.Slug] = i
	}
}

// Resolve 按标签或 slug 查找声音，找不到时返回默认声音，永不失败。
func (v *Voices) Resolve(label string) VoiceProfile {
	label = strings.TrimSpace(label)
	if i, ok := v.byLabel[label]; ok {
		return v.list[i]
	}
	if i, ok := v.bySlug[strings.ToLower(label)]; ok {
		return v.list[i]
	}
	return v.list[v.def]
}

// Default 返回默认声音。
func (v *Voices) Default() VoiceProfile {
	return v.list[v.def]
}

// List 返回全部声音。
func (v *Voices) List() []VoiceProfile {
	out := make([]VoiceProfile, len(v.list))
	copy(out, v.list)
	return out
}

var defaultVoices = NewVoices(nil, DefaultVoiceLabel)

// ResolveVoice 在内置声音表中查找声音。
func ResolveVoice(label string) VoiceProfile {
	return defaultVoices.Resolve(label)
}

// Slug 将标签转为拼音 slug，如 "知性女声" -> "zhixingnvsheng"。
// 非汉字的字母数字原样保留（小写）。
func Slug(label string) string {
	args := pinyin.NewArgs()
	args.Style = pinyin.Normal
	args.Fallback = func(r rune, a pinyin.Args) []string {
		if r < 128 && (r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return []string{strings.ToLower(string(r))}
		}
		return nil
	}

	var b strings.Builder
	for _, syllables := range pinyin.Pinyin(label, args) {
		if len(syllables) > 0 {
			b.WriteString(syllables[0])
		}
	}
	return b.String()
}
