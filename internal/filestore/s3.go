// Package filestore сохраняет изображения профиля в S3-совместимом хранилище.
package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/ewaste-hub/internal/config"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
)

// Сообщения об отклонённых файлах.
const (
	MsgTooLarge = "File is too large. Maximum size is 2MB"
	MsgNotImage = "Only image files are allowed"
)

// ObjectAPI часть клиента S3, которой пользуется хранилище.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store хранилище изображений профиля.
type Store struct {
	client        ObjectAPI
	bucket        string
	publicBaseURL string
	maxSize       int64
}

// New создаёт хранилище поверх готового клиента.
func New(client ObjectAPI, bucket, publicBaseURL string, maxSize int64) *Store {
	return &Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		maxSize:       maxSize,
	}
}

// NewS3 создаёт клиент S3 (или MinIO при заданном endpoint) со статическими ключами.
func NewS3(ctx context.Context, cfg config.S3, maxSize int64) (*Store, error) {
	const op = "filestore.NewS3"
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	base := cfg.PublicBaseURL
	if base == "" {
		base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return New(client, cfg.Bucket, base, maxSize), nil
}

// SaveProfilePicture проверяет размер и тип файла, сохраняет его и возвращает публичный путь.
// Тип определяется по содержимому, а не по имени файла.
func (s *Store) SaveProfilePicture(ctx context.Context, userID string, r io.Reader) (string, error) {
	const op = "filestore.SaveProfilePicture"

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if int64(len(data)) > s.maxSize {
		return "", apperr.Validation(MsgTooLarge)
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", apperr.Validation(MsgNotImage)
	}

	key := fmt.Sprintf("profiles/%s/%s%s", userID, uuid.NewString(), extension(contentType))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return s.publicBaseURL + "/" + key, nil
}

// Delete удаляет ранее сохранённое изображение. Пути вне хранилища
// (например, изображение по умолчанию) пропускаются.
func (s *Store) Delete(ctx context.Context, path string) error {
	prefix := s.publicBaseURL + "/"
	if !strings.HasPrefix(path, prefix) {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(strings.TrimPrefix(path, prefix)),
	})
	if err != nil {
		return fmt.Errorf("filestore.Delete: %w", err)
	}
	return nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	return ""
}
