// Пакет tools — контракты аргументов внешних инструментов.
//
// Санитайзер (Ghostscript pdfwrite) пересобирает документ, отбрасывая
// активное содержимое. Запись метаданных — exiftool на месте.
// Шифрование прав — qpdf, AES-256, пустой пароль пользователя и
// одноразовый пароль владельца.
package tools

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/bigkaa/goartstore/pdfvault/internal/domain/model"
	"github.com/bigkaa/goartstore/pdfvault/internal/runner"
)

// Имена этапов, они же метки метрик и поле stage в ошибках.
const (
	StageSanitize = "sanitize"
	StageMetadata = "metadata"
	StageEncrypt  = "encrypt"
)

// OwnerCredentialBytes — длина случайного пароля владельца до hex-кодирования.
const OwnerCredentialBytes = 32

// Binaries — исполняемые файлы инструментов.
type Binaries struct {
	Sanitizer string
	Metadata  string
	Encryptor string
}

// Sanitize — пересборка in → out через Ghostscript в безопасном режиме.
func (b Binaries) Sanitize(in, out string) runner.Command {
	return runner.Command{
		Tool:   StageSanitize,
		Binary: b.Sanitizer,
		Args: []string{
			"-dSAFER",
			"-dBATCH",
			"-dNOPAUSE",
			"-dQUIET",
			"-sDEVICE=pdfwrite",
			"-dCompatibilityLevel=1.7",
			"-sOutputFile=" + out,
			"-f", in,
		},
	}
}

// tagMapping — соответствие поля метаданных тегу exiftool.
type tagMapping struct {
	namespace string
	key       string
	tag       string
	// list — тег-список: каждое значение передаётся отдельным аргументом
	list bool
}

// metadataTags — поля, записываемые в документ. Пространство exif не записывается.
var metadataTags = []tagMapping{
	{model.NamespaceBasic, "title", "Title", false},
	{model.NamespaceBasic, "author", "Author", false},
	{model.NamespaceBasic, "description", "Subject", false},
	{model.NamespaceBasic, "keywords", "Keywords", false},
	{model.NamespaceXMP, "creator", "XMP-dc:Creator", true},
	{model.NamespaceXMP, "rights", "XMP-dc:Rights", false},
	{model.NamespaceXMP, "subject", "XMP-dc:Subject", true},
}

// MetadataArgs возвращает аргументы вида -Tag=value. Пустые поля пропускаются.
func MetadataArgs(md model.Metadata) []string {
	var args []string
	for _, m := range metadataTags {
		ns := md.Basic
		if m.namespace == model.NamespaceXMP {
			ns = md.XMP
		}
		if m.list {
			for _, v := range ns.Values(m.key) {
				args = append(args, fmt.Sprintf("-%s=%s", m.tag, v))
			}
			continue
		}
		if v := ns.Text(m.key); v != "" {
			args = append(args, fmt.Sprintf("-%s=%s", m.tag, v))
		}
	}
	return args
}

// WriteMetadata — запись метаданных в target на месте.
// Второе значение false — записывать нечего, инструмент не запускается.
func (b Binaries) WriteMetadata(target string, md model.Metadata) (runner.Command, bool) {
	tagArgs := MetadataArgs(md)
	if len(tagArgs) == 0 {
		return runner.Command{}, false
	}
	args := make([]string, 0, len(tagArgs)+4)
	args = append(args, "-overwrite_original", "-charset", "UTF8")
	args = append(args, tagArgs...)
	args = append(args, target)
	return runner.Command{Tool: StageMetadata, Binary: b.Metadata, Args: args}, true
}

// Encrypt — шифрование in → out с запретом изменения, извлечения,
// аннотирования и заполнения форм. Пароль пользователя пустой.
func (b Binaries) Encrypt(owner, in, out string) runner.Command {
	return runner.Command{
		Tool:   StageEncrypt,
		Binary: b.Encryptor,
		Args: []string{
			"--encrypt", "", owner, "256",
			"--modify=none",
			"--extract=n",
			"--annotate=n",
			"--form=n",
			"--modify-other=n",
			"--",
			in, out,
		},
	}
}

// NewOwnerCredential генерирует одноразовый пароль владельца (hex).
// Пароль нигде не сохраняется и не возвращается клиенту.
func NewOwnerCredential() (string, error) {
	buf := make([]byte, OwnerCredentialBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации пароля владельца: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
