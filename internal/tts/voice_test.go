package tts

import "testing"

func TestResolveVoice(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"知性女声", "zh-CN-XiaoxiaoNeural"},
		{"沉稳男声", "zh-CN-YunxiNeural"},
		{"新闻播音", "zh-CN-YunjianNeural"},
		{"xinwenboyin", "zh-CN-YunjianNeural"},
		{"ChenWenNanSheng", "zh-CN-YunxiNeural"},
		{" 新闻播音 ", "zh-CN-YunjianNeural"},
		{"不存在的声音", "zh-CN-XiaoxiaoNeural"},
		{"", "zh-CN-XiaoxiaoNeural"},
	}
	for _, tc := range tests {
		if got := ResolveVoice(tc.label).EdgeVoice; got != tc.want {
			t.Errorf("ResolveVoice(%q) = %s, 期望 %s", tc.label, got, tc.want)
		}
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"知性女声":  "zhixingnvsheng",
		"沉稳男声":  "chenwennansheng",
		"新闻播音":  "xinwenboyin",
		"BBC 主播": "bbczhubo",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, 期望 %q", in, got, want)
		}
	}
}

func TestNewVoices_Overrides(t *testing.T) {
	v := NewVoices([]VoiceProfile{
		{Label: "沉稳男声", EdgeVoice: "zh-CN-YunyangNeural"},
		{Label: "粤语女声", EdgeVoice: "zh-HK-HiuMaanNeural", TencentVoiceType: 101019},
		{Label: "  "},
	}, "新闻播音")

	if got := v.Resolve("沉稳男声"); got.EdgeVoice != "zh-CN-YunyangNeural" || got.TencentVoiceType != 1018 {
		t.Errorf("覆盖应只替换非空字段: %+v", got)
	}
	if got := v.Resolve("粤语女声"); got.EdgeVoice != "zh-HK-HiuMaanNeural" || got.Slug != "yueyunvsheng" {
		t.Errorf("新增声音不符: %+v", got)
	}
	if got := v.Default(); got.Label != "新闻播音" {
		t.Errorf("默认声音 = %s", got.Label)
	}
	if got := v.Resolve("unknown"); got.Label != "新闻播音" {
		t.Errorf("未知声音应回退为配置的默认声音: %s", got.Label)
	}
	if n := len(v.List()); n != 4 {
		t.Errorf("声音数量 = %d, 期望 4", n)
	}
}

func TestNewVoices_UnknownDefault(t *testing.T) {
	v := NewVoices(nil, "不存在")
	if got := v.Default(); got.Label != DefaultVoiceLabel {
		t.Errorf("默认声音 = %s, 期望 %s", got.Label, DefaultVoiceLabel)
	}
}

func TestVoiceProfileID(t *testing.T) {
	v := ResolveVoice("知性女声")
	if v.ID(EngineEdge) != "zh-CN-XiaoxiaoNeural" {
		t.Errorf("edge ID = %s", v.ID(EngineEdge))
	}
	if v.ID(EngineTencent) != "1001" {
		t.Errorf("tencent ID = %s", v.ID(EngineTencent))
	}
}
