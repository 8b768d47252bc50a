package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ChunkingConfig 分块配置，长度单位为字符（rune）。
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap" env:"CHUNK_OVERLAP"`
}

// DefaultChunkingConfig 默认分块配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    800,
		ChunkOverlap: 160,
	}
}

// Validate 校验配置
func (c ChunkingConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be > 0")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size)")
	}
	return nil
}

// Chunk 文档块
type Chunk struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
}

// Chunker 按词贪心填充分块，相邻块共享不超过 ChunkOverlap 的尾部词。
type Chunker struct {
	cfg ChunkingConfig
}

// NewChunker 创建分块器
func NewChunker(cfg ChunkingConfig) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Split 切分文本。每个块不超过 ChunkSize 个字符，超长单词被硬切。
func (c *Chunker) Split(text string) []Chunk {
	words := c.words(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(words) {
		end, length := start, 0
		for end < len(words) {
			add := utf8.RuneCountInString(words[end])
			if end > start {
				add++
			}
			if length+add > c.cfg.ChunkSize {
				break
			}
			length += add
			end++
		}

		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Content: strings.Join(words[start:end], " "),
		})
		if end == len(words) {
			break
		}

		// 回退若干词作为重叠，且保证下一块至少前进一个词
		next, overlap := end, 0
		for next-1 > start {
			add := utf8.RuneCountInString(words[next-1])
			if next < end {
				add++
			}
			if overlap+add > c.cfg.ChunkOverlap {
				break
			}
			overlap += add
			next--
		}
		start = next
	}
	return chunks
}

func (c *Chunker) words(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		for utf8.RuneCountInString(f) > c.cfg.ChunkSize {
			r := []rune(f)
			out = append(out, string(r[:c.cfg.ChunkSize]))
			f = string(r[c.cfg.ChunkSize:])
		}
		out = append(out, f)
	}
	return out
}
