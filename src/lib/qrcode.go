package lib

import (
	"context"
	"creditnote/src/models"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path"
	"time"

	awslib "creditnote/src/lib/aws"

	"github.com/gosimple/slug"
	"github.com/yeqown/go-qrcode"
)

// QRCodeRenderer renders a note's structured payload into a scannable image,
// uploads it to the assets bucket and caches the signed URL.
type QRCodeRenderer struct{}

func NewQRCodeRenderer() *QRCodeRenderer {
	return &QRCodeRenderer{}
}

func (r *QRCodeRenderer) Render(note *models.CreditNote) (string, error) {
	payload, err := json.Marshal(note.QRCodeData)
	if err != nil {
		return "", err
	}
	qrc, err := qrcode.New(string(payload))
	if err != nil {
		return "", err
	}
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not read working directory: %s\n", err.Error())
		return "", err
	}
	tempdir := os.Getenv("TEMP_DIR")
	filename := fmt.Sprintf("creditnote_%s", slug.Make(note.NoteNumber))
	filepath := path.Join(wd, tempdir, fmt.Sprintf("%s.jpeg", filename))
	if err := qrc.Save(filepath); err != nil {
		log.Printf("Could not save qrcode to file [%s]: %s\n", filepath, err.Error())
		return "", err
	}
	url, err := awslib.S3UploadAsset(filename, filepath)
	if err != nil {
		log.Printf("Error uploading asset to S3 bucket: %s\n", err.Error())
		// The rendered file is still usable locally.
		return filepath, nil
	}
	rd := GetRedisClient()
	if rd != nil {
		rd.SetEx(context.Background(), filename, *url, 2*time.Hour)
	}
	return *url, nil
}
