package indexer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Malowking/guidekb/core/common"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/Malowking/guidekb/core/specialty"
	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
)

// FileError 单个文件的加载失败
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// LoadReport 一次目录加载的统计
type LoadReport struct {
	Files     int         // 成功加载的文件数
	Documents int         // 产出的文档数（PDF 每页一个）
	Skipped   int         // 非 .pdf/.txt 被跳过的文件数
	Failed    []FileError // 解析失败的文件，不影响其余文件
}

// GuidelineLoader 递归加载指南目录中的 .pdf 与 .txt 文件
type GuidelineLoader struct {
	fileLoader document.Loader
}

// NewGuidelineLoader 创建指南加载器
func NewGuidelineLoader(ctx context.Context) (*GuidelineLoader, error) {
	p, err := newParser(ctx)
	if err != nil {
		return nil, err
	}
	fldr, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: false,
		Parser:      p,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternalError, err, "failed to create file loader")
	}
	return &GuidelineLoader{fileLoader: fldr}, nil
}

// Load 实现 document.Loader，src.URI 为指南根目录
func (l *GuidelineLoader) Load(ctx context.Context, src document.Source, opts ...document.LoaderOption) ([]*schema.Document, error) {
	docs, _, err := l.LoadDir(ctx, src.URI, opts...)
	return docs, err
}

// LoadDir 加载根目录下全部指南文件
// 根目录不存在时自动创建并返回空结果；单个文件失败只记录，不中断整体加载
func (l *GuidelineLoader) LoadDir(ctx context.Context, root string, opts ...document.LoaderOption) ([]*schema.Document, *LoadReport, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, nil, errors.Wrapf(errors.ErrFileReadFailed, err, "failed to create guidelines dir %s", root)
	}

	report := &LoadReport{}
	var docs []*schema.Document

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			g.Log().Warningf(ctx, "Skip unreadable path %s: %v", path, walkErr)
			report.Failed = append(report.Failed, FileError{Path: path, Err: walkErr})
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !common.IsGuidelineFile(path) {
			report.Skipped++
			return nil
		}

		fileDocs, err := l.loadFile(ctx, root, path, opts...)
		if err != nil {
			g.Log().Warningf(ctx, "Failed to load guideline %s: %v", path, err)
			report.Failed = append(report.Failed, FileError{Path: path, Err: err})
			return nil
		}
		report.Files++
		report.Documents += len(fileDocs)
		docs = append(docs, fileDocs...)
		g.Log().Debugf(ctx, "Loaded %s (%d documents)", path, len(fileDocs))
		return nil
	})
	if err != nil {
		return nil, report, errors.Wrapf(errors.ErrFileReadFailed, err, "failed to walk guidelines dir %s", root)
	}

	g.Log().Infof(ctx, "Loaded %d guideline files -> %d documents (skipped %d, failed %d)",
		report.Files, report.Documents, report.Skipped, len(report.Failed))
	return docs, report, nil
}

// loadFile 解析单个文件并补齐元数据，解析器 panic 视为该文件失败
func (l *GuidelineLoader) loadFile(ctx context.Context, root, path string, opts ...document.LoaderOption) (docs []*schema.Document, err error) {
	defer common.RecoverToError(ctx, "load "+path, &err)

	raw, err := l.fileLoader.Load(ctx, document.Source{URI: path}, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDocumentParseFailed, err, "parse failed")
	}

	rel, relErr := filepath.Rel(root, path)
	if relErr != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	ext := common.FileExtension(path)
	base := filepath.Base(path)
	inferred := specialty.Infer(rel)

	docs = make([]*schema.Document, 0, len(raw))
	for i, doc := range raw {
		content := common.CleanText(doc.Content)
		if content == "" {
			continue
		}
		// 解析器可能在多页之间共用同一个 map，这里每页单独拷贝
		meta := common.CloneMetadata(doc.MetaData)
		meta[common.MetaSourceFile] = base
		meta[common.MetaSpecialty] = inferred
		meta[common.MetaFilePath] = rel
		meta[common.MetaExtension] = ext

		id := rel
		if ext == common.ExtPDF {
			meta[common.MetaPage] = i + 1
			id = fmt.Sprintf("%s#page=%d", rel, i+1)
		}
		docs = append(docs, &schema.Document{
			ID:       id,
			Content:  content,
			MetaData: meta,
		})
	}
	return docs, nil
}

// ListGuidelineFiles 返回根目录下全部会被收录的文件（与加载规则一致）
func ListGuidelineFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			if path == root {
				return walkErr
			}
			return nil
		}
		if !d.IsDir() && common.IsGuidelineFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// guidelineParser 按小写扩展名分派解析器
type guidelineParser struct {
	parsers map[string]parser.Parser
}

func newParser(ctx context.Context) (parser.Parser, error) {
	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: true, // 每页一个文档，保留页码
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternalError, err, "failed to create pdf parser")
	}
	return &guidelineParser{
		parsers: map[string]parser.Parser{
			common.ExtPDF: pdfParser,
			common.ExtTXT: parser.TextParser{},
		},
	}, nil
}

// Parse 实现 parser.Parser
func (p *guidelineParser) Parse(ctx context.Context, reader io.Reader, opts ...parser.Option) ([]*schema.Document, error) {
	opt := parser.GetCommonOptions(&parser.Options{}, opts...)
	ext := common.FileExtension(opt.URI)
	target, ok := p.parsers[ext]
	if !ok {
		return nil, errors.Newf(errors.ErrUnsupportedFileType, "unsupported file type %q", ext)
	}
	return target.Parse(ctx, reader, opts...)
}
