// Package s3 provides a bucket-scoped client for the S3 REST API:
// object download and upload, prefix listing, bulk deletion, presigned
// download links, browser-upload form signing, and multipart uploads.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// # Quick start
//
// Construct a client from a Config naming the bucket. A bare bucket
// name resolves to the virtual-hosted endpoint
// <bucket>.s3.<region>.amazonaws.com; a bucket containing dots is
// treated as a full host so S3-compatible stores work unchanged:
//
//	cli, err := s3.New(nil, s3.Config{
//	    Config: paws.Config{
//	        AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
//	        SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
//	        Region:    "eu-west-2",
//	    },
//	    Bucket: "my-bucket",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	body, err := cli.Download(ctx, "reports/2026/summary.pdf")
//
// # Listing and bulk deletion
//
// List streams every object under a prefix as a pull-based iterator;
// pagination happens lazily as the consumer advances, so breaking out
// of the loop stops further requests:
//
//	for f, err := range cli.List(ctx, "reports/") {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(f.Key, f.Size)
//	}
//
// Delete removes up to 1000 keys per request and fans chunks out
// concurrently. DeleteRecursive combines both: it walks a prefix and
// deletes everything beneath it, returning the deleted keys in listing
// order.
//
// # Signed URLs and browser uploads
//
// SignedDownloadURL presigns a GET with the expiry rounded up to a
// 100-second epoch boundary, so links issued within the same window
// all expire at the same instant. SignedUpload
// builds the form fields for a browser POST upload, pinned to an exact
// content length and content type; Upload wraps it for server-side use.
//
// # Multipart uploads
//
// MultipartUpload runs a function against a part coordinator and
// settles the upload when it returns: completed on success, aborted on
// error or panic:
//
//	err := cli.MultipartUpload(ctx, "backups/db.tar", "application/x-tar", func(ctx context.Context, u *s3.MultipartUpload) error {
//	    for i, chunk := range chunks {
//	        if err := u.UploadPart(ctx, i+1, chunk); err != nil {
//	            return err
//	        }
//	    }
//	    return nil
//	})
//
// The coordinator is also usable directly via StartMultipartUpload for
// flows that outlive a single function call.
package s3
