package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"transform-service/logger"
	"transform-service/service/keylock"
	"transform-service/service/mapping_config"
	"transform-service/service/publisher"
	"transform-service/service/store"
	"transform-service/service/transform"
)

var (
	configPath   string
	inputPath    string
	existingPath string
	entityID     string
	strict       bool
	pretty       bool

	mergeStrategy string

	diffEntityID   string
	diffEventType  string
	diffDeep       bool
	diffIncludeOld bool

	redisAddr       string
	kafkaBrokers    []string
	kafkaTopic      string
	mqttBroker      string
	mqttTopicPrefix string
)

func main() {
	logger.InitLogger()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "transform-service",
	Short: "声明式JSON记录转换引擎",
	Long:  "按映射配置对JSON记录执行字段映射、值映射、Upsert冲突解决与变更事件差分。",
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "按映射配置转换一条输入记录",
	RunE:  runTransform,
}

var mergeCmd = &cobra.Command{
	Use:   "merge <target.json> <source.json>",
	Short: "按策略合并两个JSON对象",
	Args:  cobra.ExactArgs(2),
	RunE:  runMerge,
}

var diffCmd = &cobra.Command{
	Use:   "diff <old.json> <new.json>",
	Short: "比较新旧记录并生成变更事件",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "校验映射配置的结构与语义",
	RunE:  runValidate,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "格式化输出JSON")

	transformCmd.Flags().StringVarP(&configPath, "config", "c", "", "映射配置文件路径（必填）")
	transformCmd.Flags().StringVarP(&inputPath, "input", "i", "", "输入记录文件路径，缺省读取stdin")
	transformCmd.Flags().StringVar(&existingPath, "existing", "", "预置已有记录文件，供Upsert查询")
	transformCmd.Flags().StringVar(&entityID, "entity-id", "", "实体标识，用于变更事件")
	transformCmd.Flags().BoolVar(&strict, "strict", false, "严格模式，转换失败即中止")
	transformCmd.Flags().StringVar(&redisAddr, "redis", "", "Redis地址，启用后记录存储与按键锁走Redis")
	transformCmd.Flags().StringSliceVar(&kafkaBrokers, "kafka-brokers", nil, "Kafka broker列表，启用后变更事件发布到Kafka")
	transformCmd.Flags().StringVar(&kafkaTopic, "kafka-topic", "transform.change-events", "Kafka变更事件主题")
	transformCmd.Flags().StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker地址，启用后变更事件发布到MQTT")
	transformCmd.Flags().StringVar(&mqttTopicPrefix, "mqtt-topic-prefix", "transform/events", "MQTT主题前缀")
	transformCmd.MarkFlagRequired("config")

	mergeCmd.Flags().StringVar(&mergeStrategy, "strategy", "shallow", "合并策略: shallow 或 deep")

	diffCmd.Flags().StringVar(&diffEntityID, "entity-id", "", "实体标识")
	diffCmd.Flags().StringVar(&diffEventType, "event-type", "record.changed", "事件类型")
	diffCmd.Flags().BoolVar(&diffDeep, "deep", false, "递归比较嵌套对象")
	diffCmd.Flags().BoolVar(&diffIncludeOld, "include-old", false, "事件中携带旧记录")

	validateCmd.Flags().StringVarP(&configPath, "config", "c", "", "映射配置文件路径（必填）")
	validateCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(transformCmd, mergeCmd, diffCmd, validateCmd)
}

func runTransform(cmd *cobra.Command, args []string) error {
	loader, err := mapping_config.NewLoader()
	if err != nil {
		return err
	}
	config, err := loader.LoadFile(configPath)
	if err != nil {
		return err
	}

	input, err := readRecord(inputPath)
	if err != nil {
		return fmt.Errorf("读取输入记录失败: %w", err)
	}

	ctx := context.Background()

	recordStore, lock, err := buildStore()
	if err != nil {
		return err
	}
	defer recordStore.Close()

	if existingPath != "" {
		if err := preloadExisting(ctx, recordStore, existingPath, config); err != nil {
			return err
		}
	}

	eventPublisher, err := buildPublisher()
	if err != nil {
		return err
	}
	defer eventPublisher.Close()

	engine := transform.NewTransformEngine()
	now := time.Now()
	req := transform.TransformRequest{
		Input:         input,
		FieldMappings: config.FieldMappings,
		ValueMappings: config.ValueMappings,
		Upsert:        config.Upsert,
		ChangeEvent:   config.ChangeEvent,
		SystemFields:  &transform.SystemFields{ProcessingTime: &now, EntityType: config.EntityType},
		EntityID:      entityID,
		Strict:        strict,
		Lookup:        store.LookupFunc(recordStore),
	}

	var result *transform.TransformResult
	runErr := func() error {
		result, err = engine.Transform(ctx, req)
		if err != nil {
			return err
		}
		if config.Upsert != nil && config.Upsert.Enabled && result.Action != transform.ActionSkipped {
			key, keyErr := transform.NewUpsertResolver().ExtractKey(result.Record, *config.Upsert)
			if keyErr != nil {
				return keyErr
			}
			return recordStore.Save(ctx, key, result.Record)
		}
		return nil
	}

	if config.Upsert != nil && config.Upsert.Enabled {
		// 同一复合键同一时刻只允许一个写入方
		key, keyErr := lockKey(engine, req, config)
		if keyErr != nil {
			return keyErr
		}
		if err := keylock.WithLock(ctx, lock, key, 30*time.Second, runErr); err != nil {
			return err
		}
	} else {
		if err := runErr(); err != nil {
			return err
		}
	}

	if result.Event != nil {
		if err := eventPublisher.Publish(ctx, result.Event); err != nil {
			return fmt.Errorf("发布变更事件失败: %w", err)
		}
	}

	return printJSON(result)
}

// lockKey 从求值后的输出中提取复合键编码，作为按键锁的键
func lockKey(engine *transform.TransformEngine, req transform.TransformRequest, config *mapping_config.TransformConfig) (string, error) {
	output, _, err := engine.Evaluator().Evaluate(req.Input, req.FieldMappings, req.ValueMappings, req.SystemFields, req.Strict)
	if err != nil {
		return "", err
	}
	key, err := transform.NewUpsertResolver().ExtractKey(output, *config.Upsert)
	if err != nil {
		return "", err
	}
	return store.EncodeKey(key), nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	target, err := readRecord(args[0])
	if err != nil {
		return fmt.Errorf("读取目标对象失败: %w", err)
	}
	source, err := readRecord(args[1])
	if err != nil {
		return fmt.Errorf("读取来源对象失败: %w", err)
	}

	strategy := transform.MergeStrategy(mergeStrategy)
	if strategy != transform.MergeShallow && strategy != transform.MergeDeep {
		return fmt.Errorf("未知的合并策略: %s", mergeStrategy)
	}

	merged := transform.NewMergeResolver().Merge(target, source, strategy)
	return printJSON(merged)
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldRecord, err := readRecordAllowEmpty(args[0])
	if err != nil {
		return fmt.Errorf("读取旧记录失败: %w", err)
	}
	newRecord, err := readRecord(args[1])
	if err != nil {
		return fmt.Errorf("读取新记录失败: %w", err)
	}

	config := transform.ChangeEventConfig{
		Enabled:          true,
		EventType:        diffEventType,
		IncludeOldValues: diffIncludeOld,
		DeepDiff:         diffDeep,
	}
	event, err := transform.NewDiffGenerator().Diff(oldRecord, newRecord, diffEntityID, config, nil)
	if err != nil {
		return err
	}
	return printJSON(event)
}

func runValidate(cmd *cobra.Command, args []string) error {
	loader, err := mapping_config.NewLoader()
	if err != nil {
		return err
	}
	config, err := loader.LoadFile(configPath)
	if err != nil {
		return err
	}

	problems := loader.ValidateSemantics(config, transform.NewScriptExecutor())
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(os.Stderr, p)
		}
		return fmt.Errorf("配置语义校验失败: %d处问题", len(problems))
	}

	fmt.Println("配置校验通过")
	return nil
}

func buildStore() (store.RecordStore, keylock.KeyLock, error) {
	if redisAddr == "" {
		return store.NewMemoryStore(), keylock.NewLocalKeyLock(), nil
	}

	redisStore, err := store.NewRedisStore(&store.RedisStoreConfig{Addr: redisAddr})
	if err != nil {
		return nil, nil, err
	}
	return redisStore, keylock.NewRedisKeyLock(redisStore.Client()), nil
}

func buildPublisher() (publisher.EventPublisher, error) {
	if len(kafkaBrokers) > 0 {
		return publisher.NewKafkaPublisher(&publisher.KafkaPublisherConfig{
			Brokers: kafkaBrokers,
			Topic:   kafkaTopic,
		}), nil
	}
	if mqttBroker != "" {
		return publisher.NewMQTTPublisher(&publisher.MQTTPublisherConfig{
			Broker:      mqttBroker,
			ClientID:    fmt.Sprintf("transform-service-%d", os.Getpid()),
			TopicPrefix: mqttTopicPrefix,
		})
	}
	return publisher.NewMemoryPublisher(), nil
}

// preloadExisting 将已有记录按Upsert唯一字段写入存储，供查询回调命中
func preloadExisting(ctx context.Context, recordStore store.RecordStore, path string, config *mapping_config.TransformConfig) error {
	if config.Upsert == nil || !config.Upsert.Enabled {
		return fmt.Errorf("预置已有记录需要启用Upsert配置")
	}

	existing, err := readRecord(path)
	if err != nil {
		return fmt.Errorf("读取已有记录失败: %w", err)
	}

	key, err := transform.NewUpsertResolver().ExtractKey(existing, *config.Upsert)
	if err != nil {
		return err
	}
	return recordStore.Save(ctx, key, existing)
}

func readRecord(path string) (map[string]interface{}, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = readAllStdin()
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var record map[string]interface{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("JSON解析失败: %w", err)
	}
	return record, nil
}

// readRecordAllowEmpty 路径为空字符串字面量"null"或文件内容为null时返回nil记录
func readRecordAllowEmpty(path string) (map[string]interface{}, error) {
	if path == "null" {
		return nil, nil
	}
	return readRecord(path)
}

func readAllStdin() ([]byte, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("未提供输入记录，使用 --input 或通过stdin传入")
	}
	return io.ReadAll(os.Stdin)
}

func printJSON(v interface{}) error {
	var output []byte
	var err error
	if pretty {
		output, err = json.MarshalIndent(v, "", "  ")
	} else {
		output, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
