package initial

import (
	"context"
	"fmt"
	"strings"

	"SecAssist/internal/config"
	"SecAssist/internal/modules/ai/infrastructure/vectordb"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// NewMilvusClient connects to Milvus and makes sure the message collection exists.
// It returns nil, nil when no address is configured.
func NewMilvusClient(ctx context.Context, conf *config.Config) (mclient.Client, error) {
	addr := strings.TrimSpace(conf.MilvusConfig.Address)
	if addr == "" {
		return nil, nil
	}
	dbName := strings.TrimSpace(conf.MilvusConfig.DBName)
	if dbName == "" {
		dbName = "secassist"
	}
	collection := strings.TrimSpace(conf.MilvusConfig.CollectionName)
	dim := conf.MilvusConfig.VectorDim

	defaultCli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.MilvusConfig.Username),
		Password: strings.TrimSpace(conf.MilvusConfig.Password),
		DBName:   "default",
	})
	if err != nil {
		return nil, err
	}
	defer defaultCli.Close()

	dbs, err := defaultCli.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	exists := false
	for _, db := range dbs {
		if db.Name == dbName {
			exists = true
			break
		}
	}
	if !exists {
		if err := defaultCli.CreateDatabase(ctx, dbName); err != nil {
			return nil, err
		}
	}

	cli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.MilvusConfig.Username),
		Password: strings.TrimSpace(conf.MilvusConfig.Password),
		DBName:   dbName,
	})
	if err != nil {
		return nil, err
	}
	if err := ensureMessageCollection(ctx, cli, collection, dim); err != nil {
		_ = cli.Close()
		return nil, err
	}
	_ = cli.LoadCollection(ctx, collection, false)
	return cli, nil
}

func ensureMessageCollection(ctx context.Context, cli mclient.Client, collection string, dim int) error {
	cols, err := cli.ListCollections(ctx)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if c.Name == collection {
			return nil
		}
	}

	varchar := func(name, maxLen string) *entity.Field {
		return &entity.Field{
			Name:       name,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": maxLen},
		}
	}
	id := varchar(vectordb.FieldID, "32")
	id.PrimaryKey = true

	schema := &entity.Schema{
		CollectionName: collection,
		Description:    "SecAssist conversation message embeddings",
		Fields: []*entity.Field{
			id,
			{
				Name:       vectordb.FieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{entity.TypeParamDim: fmt.Sprintf("%d", dim)},
			},
			varchar(vectordb.FieldSessionID, "64"),
			varchar(vectordb.FieldUserID, "64"),
			varchar(vectordb.FieldRole, "16"),
			varchar(vectordb.FieldCategory, "32"),
			{Name: vectordb.FieldCreatedAt, DataType: entity.FieldTypeInt64},
		},
	}
	if err := cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return err
	}
	idx, err := entity.NewIndexAUTOINDEX(entity.COSINE)
	if err != nil {
		return err
	}
	return cli.CreateIndex(ctx, collection, vectordb.FieldVector, idx, false)
}
