package aws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrAssetNotFound is returned when a rendered image was never uploaded or
// has been cleaned out of the bucket.
var ErrAssetNotFound = errors.New("asset not found")

func GetS3Client() *s3.Client {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Printf("Could not load default config: %s\n", err.Error())
		return nil
	}
	svc := s3.NewFromConfig(cfg)
	return svc
}

// assetKey namespaces note images inside the shared assets bucket.
func assetKey(name string) string {
	return fmt.Sprintf("creditnote/%s.jpeg", name)
}

// presignTTL is how long a signed image URL stays valid. POS devices cache
// the URL, so merchants can raise S3_PRESIGN_TTL_SECONDS above the default
// hour when their registers sync infrequently.
func presignTTL() time.Duration {
	if raw := os.Getenv("S3_PRESIGN_TTL_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Hour
}

// S3DownloadAsset fetches a rendered credit-note image into the temp dir and
// returns the local path. A missing object reports ErrAssetNotFound so the
// caller can re-render instead of serving nothing.
func S3DownloadAsset(name string) (string, error) {
	assetsBucket := os.Getenv("S3_ASSETS_BUCKET")
	client := GetS3Client()
	result, err := client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(assetsBucket),
		Key:    aws.String(assetKey(name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", ErrAssetNotFound
		}
		return "", err
	}
	defer result.Body.Close()
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not read working directory: %s\n", err.Error())
		return "", err
	}
	tempdir := os.Getenv("TEMP_DIR")
	filepath := path.Join(wd, tempdir, fmt.Sprintf("%s.jpeg", name))
	file, err := os.Create(filepath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	body, err := io.ReadAll(result.Body)
	if err != nil {
		return "", err
	}
	if _, err := file.Write(body); err != nil {
		return "", err
	}
	return filepath, nil
}

// S3UploadAsset stores a rendered credit-note image and returns a presigned
// URL POS devices can show or print.
func S3UploadAsset(name string, f string) (*string, error) {
	assetsBucket := os.Getenv("S3_ASSETS_BUCKET")
	key := assetKey(name)
	file, err := os.Open(f)
	if err != nil {
		log.Printf("Could not open file to upload: %s\n", err.Error())
		return nil, err
	}
	defer file.Close()
	client := GetS3Client()
	_, err = client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(assetsBucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		log.Printf("Could not put object to S3 bucket: %s\n", err.Error())
		return nil, err
	}
	err = s3.NewObjectExistsWaiter(client).Wait(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(assetsBucket),
		Key:    aws.String(key),
	}, time.Minute)
	if err != nil {
		log.Printf("Failed attempt to wait for object %s to exist: %s\n", key, err.Error())
		return nil, err
	}
	log.Printf("Added object '%s' to bucket '%s'", key, assetsBucket)
	pre := s3.NewPresignClient(client)
	r, err := pre.PresignGetObject(context.TODO(), &s3.GetObjectInput{
		Bucket: aws.String(assetsBucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = presignTTL()
	})
	if err != nil {
		log.Printf("Could not generate presigned URL for object [%s]: %s\n", key, err.Error())
		return nil, err
	}
	return &r.URL, nil
}
